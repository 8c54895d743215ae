// Package subscription defines the subscription ledger: every purchase, its
// snapshotted plan terms, and its voucher counters.
package subscription

import (
	"time"

	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
	"github.com/mealvine/mealpass/types"
)

// Status is the lifecycle status of a subscription. ACTIVE is the only
// non-terminal state; expired, exhausted, and cancelled are all terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
	StatusCancelled Status = "cancelled"
)

// Statuses lists all known subscription statuses.
var Statuses = []Status{StatusActive, StatusExpired, StatusExhausted, StatusCancelled}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusExpired || s == StatusExhausted || s == StatusCancelled
}

// CanTransition reports whether a transition from s to target is allowed.
// The only legal transitions leave ACTIVE; terminal states are absorbing.
func (s Status) CanTransition(target Status) bool {
	return s == StatusActive && target.IsTerminal()
}

// Subscription is a single purchase of a plan by a customer. The plan's
// scope, duration, voucher allotment, and price are snapshotted here at
// purchase time; the PlanID linkage is for reporting only.
type Subscription struct {
	types.Entity
	ID            id.SubscriptionID `json:"id"`
	CustomerID    id.CustomerID     `json:"customer_id"`
	PlanID        id.PlanID         `json:"plan_id"`
	Scope         plan.Scope        `json:"scope"`
	DurationDays  int               `json:"duration_days"`
	TotalVouchers int               `json:"total_vouchers"`
	UsedVouchers  int               `json:"used_vouchers"`
	AmountPaid    types.Money       `json:"amount_paid"`
	PurchasedAt   time.Time         `json:"purchased_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Status        Status            `json:"status"`
	DeletedAt     *time.Time        `json:"deleted_at,omitempty"`
}

// Remaining returns the number of unredeemed vouchers.
func (s *Subscription) Remaining() int {
	r := s.TotalVouchers - s.UsedVouchers
	if r < 0 {
		return 0
	}
	return r
}

// IsExpired reports whether the validity window has lapsed at the given
// instant, regardless of the stored status. Callers use this for lazy
// expiry: a record can be past its window while still marked ACTIVE.
func (s *Subscription) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsExhausted reports whether every voucher has been redeemed.
func (s *Subscription) IsExhausted() bool {
	return s.UsedVouchers >= s.TotalVouchers
}

// IsDeleted reports whether the record is soft-deleted.
func (s *Subscription) IsDeleted() bool {
	return s.DeletedAt != nil
}

// Usable reports whether the subscription can redeem a voucher right now:
// ACTIVE, not soft-deleted, within its window, with vouchers remaining.
func (s *Subscription) Usable(now time.Time) bool {
	return s.Status == StatusActive &&
		!s.IsDeleted() &&
		!s.IsExpired(now) &&
		!s.IsExhausted()
}
