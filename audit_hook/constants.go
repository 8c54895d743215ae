package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanCreated     = "plan.created"
	ActionPlanUpdated     = "plan.updated"
	ActionPlanDeactivated = "plan.deactivated"

	// Subscription actions
	ActionSubscriptionPurchased = "subscription.purchased"
	ActionSubscriptionCanceled  = "subscription.canceled"
	ActionSubscriptionExpired   = "subscription.expired"
	ActionSubscriptionExhausted = "subscription.exhausted"

	// Voucher actions
	ActionVoucherRedeemed    = "voucher.redeemed"
	ActionRedemptionsFlushed = "redemptions.flushed"

	// Sweep actions
	ActionSweepCompleted = "sweep.completed"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourceVoucher      = "voucher"
	ResourceSweep        = "sweep"
)

// Category constants for audit events.
const (
	CategoryCatalog      = "catalog"
	CategorySubscription = "subscription"
	CategoryRedemption   = "redemption"
	CategoryMaintenance  = "maintenance"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
