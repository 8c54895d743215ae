package store

import (
	"context"
	"time"

	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
	"github.com/mealvine/mealpass/redemption"
	"github.com/mealvine/mealpass/stats"
	"github.com/mealvine/mealpass/subscription"
)

// Store is the unified storage interface for all MealPass entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Plan methods
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
	FindActivePlan(ctx context.Context, name string, duration plan.Duration, scope plan.Scope) (*plan.Plan, error)
	ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error)
	UpdatePlan(ctx context.Context, p *plan.Plan) error
	SetPlanStatus(ctx context.Context, planID id.PlanID, status plan.Status) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	FindBlockingSubscriptions(ctx context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*subscription.Subscription, error)
	ListUsableSubscriptions(ctx context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*subscription.Subscription, error)
	ConsumeVoucher(ctx context.Context, subID id.SubscriptionID, expectedUsed int, newStatus subscription.Status) error
	TransitionStatus(ctx context.Context, subID id.SubscriptionID, from, to subscription.Status) error
	SetSubscriptionStatus(ctx context.Context, subID id.SubscriptionID, status subscription.Status) error
	SetSubscriptionDeleted(ctx context.Context, subID id.SubscriptionID, deleted bool) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	// Redemption log methods
	RecordRedemptions(ctx context.Context, events []*redemption.Event) error
	QueryRedemptions(ctx context.Context, opts redemption.QueryOpts) ([]*redemption.Event, error)
	PurgeRedemptions(ctx context.Context, before time.Time) (int64, error)

	// Statistics methods
	Stats(ctx context.Context, opts stats.Opts) (*stats.Overview, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
