package subscription

import (
	"context"
	"time"

	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	List(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error

	// FindBlocking returns the customer's non-deleted ACTIVE subscriptions
	// whose scope overlaps the given one and whose window has not lapsed at
	// now. A non-empty result blocks a new purchase of that scope.
	FindBlocking(ctx context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*Subscription, error)

	// ListUsable returns the customer's subscriptions that can redeem a
	// voucher for the given meal window at now.
	ListUsable(ctx context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*Subscription, error)

	// ConsumeVoucher atomically increments UsedVouchers by one and sets the
	// status, on the condition that the record is still ACTIVE and its
	// UsedVouchers equals expectedUsed. A failed precondition is reported as
	// a stale-record error so the caller can re-read and retry.
	ConsumeVoucher(ctx context.Context, subID id.SubscriptionID, expectedUsed int, newStatus Status) error

	// TransitionStatus flips the status from "from" to "to" only if the
	// record currently holds "from". A failed precondition is reported as a
	// stale-record error.
	TransitionStatus(ctx context.Context, subID id.SubscriptionID, from, to Status) error

	// SetStatus unconditionally overwrites the status (admin override).
	SetStatus(ctx context.Context, subID id.SubscriptionID, status Status) error

	// SetDeleted soft-deletes or restores the record.
	SetDeleted(ctx context.Context, subID id.SubscriptionID, deleted bool) error

	// SweepExpired bulk-transitions ACTIVE, non-deleted records whose window
	// lapsed at or before now into EXPIRED, returning the number changed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sort orders list results. The zero value falls back to SortPurchasedDesc.
type Sort string

const (
	SortPurchasedDesc Sort = "purchased_desc"
	SortPurchasedAsc  Sort = "purchased_asc"
	SortExpiresAsc    Sort = "expires_asc"
	SortExpiresDesc   Sort = "expires_desc"
)

// Valid reports whether the sort is a known value. The empty string is
// valid and means the default order.
func (s Sort) Valid() bool {
	switch s {
	case "", SortPurchasedDesc, SortPurchasedAsc, SortExpiresAsc, SortExpiresDesc:
		return true
	}
	return false
}

type ListOpts struct {
	Status         Status
	CustomerID     id.CustomerID
	PlanID         id.PlanID
	IncludeDeleted bool
	Sort           Sort
	Limit          int
	Offset         int
}
