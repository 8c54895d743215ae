// Package plugin provides an extensible plugin system for MealPass.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan catalog hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called when a new plan is created.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, plan interface{}) error
}

// OnPlanUpdated is called when a plan is updated.
type OnPlanUpdated interface {
	Plugin
	OnPlanUpdated(ctx context.Context, oldPlan, newPlan interface{}) error
}

// OnPlanDeactivated is called when a plan is taken off sale.
type OnPlanDeactivated interface {
	Plugin
	OnPlanDeactivated(ctx context.Context, planID string) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionPurchased is called when a customer purchases a subscription.
type OnSubscriptionPurchased interface {
	Plugin
	OnSubscriptionPurchased(ctx context.Context, sub interface{}) error
}

// OnSubscriptionCanceled is called when a subscription is canceled.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub interface{}) error
}

// OnSubscriptionExpired is called when a subscription's window lapses,
// whether the correction was lazy or swept.
type OnSubscriptionExpired interface {
	Plugin
	OnSubscriptionExpired(ctx context.Context, sub interface{}) error
}

// OnSubscriptionExhausted is called when the last voucher is redeemed.
type OnSubscriptionExhausted interface {
	Plugin
	OnSubscriptionExhausted(ctx context.Context, sub interface{}) error
}

// ──────────────────────────────────────────────────
// Voucher redemption hooks
// ──────────────────────────────────────────────────

// OnVoucherRedeemed is called after each successful voucher redemption.
type OnVoucherRedeemed interface {
	Plugin
	OnVoucherRedeemed(ctx context.Context, sub interface{}) error
}

// OnRedemptionsFlushed is called when the redemption log buffer is flushed
// to the store.
type OnRedemptionsFlushed interface {
	Plugin
	OnRedemptionsFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted is called after an expiry sweep run, including no-op runs.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, expired int64) error
}
