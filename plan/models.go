// Package plan defines the meal plan catalog: the purchasable plan templates
// a customer subscribes to.
package plan

import (
	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/types"
)

// Status is the lifecycle status of a plan.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Duration is the subscription validity window in days.
// Only the fixed tiers below are purchasable.
type Duration int

const (
	DurationWeek      Duration = 7
	DurationFortnight Duration = 14
	DurationMonth     Duration = 30
	DurationTwoMonths Duration = 60
)

// Durations lists all purchasable duration tiers.
var Durations = []Duration{DurationWeek, DurationFortnight, DurationMonth, DurationTwoMonths}

// Valid reports whether d is one of the purchasable tiers.
func (d Duration) Valid() bool {
	for _, v := range Durations {
		if d == v {
			return true
		}
	}
	return false
}

// Days returns the duration as an int day count.
func (d Duration) Days() int { return int(d) }

// Scope is the meal window a plan's vouchers can be redeemed in.
type Scope string

const (
	ScopeBoth   Scope = "both"
	ScopeLunch  Scope = "lunch"
	ScopeDinner Scope = "dinner"
)

// Valid reports whether the scope is a known value.
func (s Scope) Valid() bool {
	return s == ScopeBoth || s == ScopeLunch || s == ScopeDinner
}

// Overlaps reports whether two scopes cover a common meal window.
// ScopeBoth overlaps every scope, including another ScopeBoth; a customer
// holding a BOTH subscription is therefore blocked from purchasing any
// further plan until it lapses. Identical single scopes overlap; lunch and
// dinner do not.
func (s Scope) Overlaps(other Scope) bool {
	if s == ScopeBoth || other == ScopeBoth {
		return true
	}
	return s == other
}

// Satisfies reports whether a subscription of scope s can redeem a voucher
// for the requested meal window. BOTH satisfies any request.
func (s Scope) Satisfies(requested Scope) bool {
	if s == ScopeBoth {
		return true
	}
	return s == requested
}

// Plan is a purchasable meal plan template. Subscriptions snapshot the
// plan fields at purchase time, so later edits never affect issued
// subscriptions.
type Plan struct {
	types.Entity
	ID             id.PlanID    `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Duration       Duration     `json:"duration_days"`
	Scope          Scope        `json:"scope"`
	VoucherCount   int          `json:"voucher_count"`
	Price          types.Money  `json:"price"`
	CompareAtPrice *types.Money `json:"compare_at_price,omitempty"`
	Status         Status       `json:"status"`
}

// IsActive reports whether the plan is currently purchasable.
func (p *Plan) IsActive() bool { return p.Status == StatusActive }
