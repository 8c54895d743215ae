// Package observability provides a metrics extension for MealPass that records
// lifecycle event counts via an injected MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/mealvine/mealpass/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated           = (*MetricsExtension)(nil)
	_ plugin.OnPlanUpdated           = (*MetricsExtension)(nil)
	_ plugin.OnPlanDeactivated       = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionPurchased = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExpired   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExhausted = (*MetricsExtension)(nil)
	_ plugin.OnVoucherRedeemed       = (*MetricsExtension)(nil)
	_ plugin.OnRedemptionsFlushed    = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a MealPass plugin to automatically track subscription metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanCreated     Counter
	PlanUpdated     Counter
	PlanDeactivated Counter

	// Subscription metrics
	SubscriptionPurchased Counter
	SubscriptionCanceled  Counter
	SubscriptionExpired   Counter
	SubscriptionExhausted Counter

	// Redemption metrics
	VouchersRedeemed     Counter
	RedemptionBatchSize  Histogram
	RedemptionFlushDelay Histogram

	// Sweep metrics
	SweepRuns    Counter
	SweepExpired Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Plan metrics
		PlanCreated:     factory.Counter("mealpass.plan.created"),
		PlanUpdated:     factory.Counter("mealpass.plan.updated"),
		PlanDeactivated: factory.Counter("mealpass.plan.deactivated"),

		// Subscription metrics
		SubscriptionPurchased: factory.Counter("mealpass.subscription.purchased"),
		SubscriptionCanceled:  factory.Counter("mealpass.subscription.canceled"),
		SubscriptionExpired:   factory.Counter("mealpass.subscription.expired"),
		SubscriptionExhausted: factory.Counter("mealpass.subscription.exhausted"),

		// Redemption metrics
		VouchersRedeemed:     factory.Counter("mealpass.voucher.redeemed"),
		RedemptionBatchSize:  factory.Histogram("mealpass.redemption.batch.size"),
		RedemptionFlushDelay: factory.Histogram("mealpass.redemption.flush.latency_ms"),

		// Sweep metrics
		SweepRuns:    factory.Counter("mealpass.sweep.runs"),
		SweepExpired: factory.Histogram("mealpass.sweep.expired"),

		// Error metrics
		StoreErrors:  factory.Counter("mealpass.store.errors"),
		PluginErrors: factory.Counter("mealpass.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Plan catalog hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ interface{}) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (m *MetricsExtension) OnPlanUpdated(_ context.Context, _, _ interface{}) error {
	m.PlanUpdated.Inc()
	return nil
}

// OnPlanDeactivated implements plugin.OnPlanDeactivated.
func (m *MetricsExtension) OnPlanDeactivated(_ context.Context, _ string) error {
	m.PlanDeactivated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionPurchased implements plugin.OnSubscriptionPurchased.
func (m *MetricsExtension) OnSubscriptionPurchased(_ context.Context, _ interface{}) error {
	m.SubscriptionPurchased.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ interface{}) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (m *MetricsExtension) OnSubscriptionExpired(_ context.Context, _ interface{}) error {
	m.SubscriptionExpired.Inc()
	return nil
}

// OnSubscriptionExhausted implements plugin.OnSubscriptionExhausted.
func (m *MetricsExtension) OnSubscriptionExhausted(_ context.Context, _ interface{}) error {
	m.SubscriptionExhausted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Redemption hooks
// ──────────────────────────────────────────────────

// OnVoucherRedeemed implements plugin.OnVoucherRedeemed.
func (m *MetricsExtension) OnVoucherRedeemed(_ context.Context, _ interface{}) error {
	m.VouchersRedeemed.Inc()
	return nil
}

// OnRedemptionsFlushed implements plugin.OnRedemptionsFlushed.
func (m *MetricsExtension) OnRedemptionsFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.RedemptionBatchSize.Observe(float64(count))
	m.RedemptionFlushDelay.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, expired int64) error {
	m.SweepRuns.Inc()
	m.SweepExpired.Observe(float64(expired))
	return nil
}
