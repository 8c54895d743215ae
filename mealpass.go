package mealpass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
	"github.com/mealvine/mealpass/plugin"
	"github.com/mealvine/mealpass/redemption"
	"github.com/mealvine/mealpass/stats"
	"github.com/mealvine/mealpass/store"
	"github.com/mealvine/mealpass/subscription"
	"github.com/mealvine/mealpass/types"
)

// priceTolerance is the maximum accepted difference, in minor units, between
// the amount a customer paid and the plan price. Gateways occasionally round
// the captured amount by one minor unit.
const priceTolerance = 1

// Engine is the meal-pass subscription engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Background workers
	redemptionBuffer chan *redemption.Event
	stopChan         chan struct{}
	wg               sync.WaitGroup

	// Configuration
	currency                string
	redemptionBatchSize     int
	redemptionFlushInterval time.Duration
	consumeRetries          int
	disableMigrate          bool
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:                   s,
		plugins:                 plugin.NewRegistry(),
		logger:                  slog.Default(),
		redemptionBuffer:        make(chan *redemption.Event, 10000),
		stopChan:                make(chan struct{}),
		currency:                "inr",
		redemptionBatchSize:     100,
		redemptionFlushInterval: 5 * time.Second,
		consumeRetries:          3,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithRedemptionConfig configures redemption log batching parameters.
func WithRedemptionConfig(batchSize int, flushInterval time.Duration) Option {
	return func(e *Engine) {
		e.redemptionBatchSize = batchSize
		e.redemptionFlushInterval = flushInterval
	}
}

// WithCurrency sets the engine's catalog currency (ISO 4217, default "inr").
// Every plan price must be denominated in it, which keeps all revenue
// aggregation in a single currency.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if currency != "" {
			e.currency = strings.ToLower(currency)
		}
	}
}

// WithDisableMigrate skips store migration on Start. Use when the schema is
// managed externally.
func WithDisableMigrate() Option {
	return func(e *Engine) {
		e.disableMigrate = true
	}
}

// WithConsumeRetries sets how many times a voucher redemption re-reads and
// retries after losing a concurrent conditional write.
func WithConsumeRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.consumeRetries = n
		}
	}
}

// Start begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if !e.disableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start redemption flush worker
	e.wg.Add(1)
	go e.redemptionFlushWorker(ctx)

	e.logger.Info("mealpass started",
		"currency", e.currency,
		"batch_size", e.redemptionBatchSize,
		"flush_interval", e.redemptionFlushInterval,
		"consume_retries", e.consumeRetries,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Plan Catalog
// ──────────────────────────────────────────────────

// CreatePlan creates a new meal plan. Among active plans the
// (name, duration, scope) triple must be unique.
func (e *Engine) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if p.Status == "" {
		p.Status = plan.StatusActive
	}
	if err := validatePlan(p, e.currency); err != nil {
		return err
	}

	if p.Status == plan.StatusActive {
		if err := e.checkPlanUnique(ctx, p); err != nil {
			return err
		}
	}

	if p.ID.IsNil() {
		p.ID = id.NewPlanID()
	}
	p.Entity = types.NewEntity()

	if err := e.store.CreatePlan(ctx, p); err != nil {
		return err
	}

	e.plugins.EmitPlanCreated(ctx, p)
	return nil
}

// UpdatePlan updates a plan's catalog fields. Subscriptions already issued
// against it keep their purchase-time snapshot and are never touched.
func (e *Engine) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	if err := validatePlan(p, e.currency); err != nil {
		return err
	}

	old, err := e.store.GetPlan(ctx, p.ID)
	if err != nil {
		return err
	}

	if p.Status == plan.StatusActive {
		if err := e.checkPlanUnique(ctx, p); err != nil {
			return err
		}
	}

	p.Entity = old.Entity
	p.Touch()

	if err := e.store.UpdatePlan(ctx, p); err != nil {
		return err
	}

	e.plugins.EmitPlanUpdated(ctx, old, p)
	return nil
}

// GetPlan retrieves a plan by ID.
func (e *Engine) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return e.store.GetPlan(ctx, planID)
}

// ListPlans lists plans with optional status filter and pagination.
func (e *Engine) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, ValidationError{Field: "status", Message: "unknown plan status"}
	}
	return e.store.ListPlans(ctx, opts)
}

// DeactivatePlan removes a plan from sale. Issued subscriptions are
// unaffected.
func (e *Engine) DeactivatePlan(ctx context.Context, planID id.PlanID) error {
	if err := e.store.SetPlanStatus(ctx, planID, plan.StatusInactive); err != nil {
		return err
	}
	e.plugins.EmitPlanDeactivated(ctx, planID.String())
	return nil
}

// ReactivatePlan puts an inactive plan back on sale, re-checking catalog
// uniqueness first.
func (e *Engine) ReactivatePlan(ctx context.Context, planID id.PlanID) error {
	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if err := e.checkPlanUnique(ctx, p); err != nil {
		return err
	}
	return e.store.SetPlanStatus(ctx, planID, plan.StatusActive)
}

// checkPlanUnique rejects if another active plan already carries the same
// (name, duration, scope) triple.
func (e *Engine) checkPlanUnique(ctx context.Context, p *plan.Plan) error {
	existing, err := e.store.FindActivePlan(ctx, p.Name, p.Duration, p.Scope)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID.String() != p.ID.String() {
		return ErrDuplicatePlan
	}
	return nil
}

func validatePlan(p *plan.Plan, currency string) error {
	switch {
	case p.Name == "":
		return ValidationError{Field: "name", Message: "required"}
	case !p.Duration.Valid():
		return ValidationError{Field: "duration_days", Message: "must be one of 7, 14, 30, 60"}
	case !p.Scope.Valid():
		return ValidationError{Field: "scope", Message: "must be both, lunch or dinner"}
	case p.VoucherCount < 1:
		return ValidationError{Field: "voucher_count", Message: "must be at least 1"}
	case !p.Price.IsPositive():
		return ValidationError{Field: "price", Message: "must be positive"}
	case p.Price.Currency != currency:
		return ValidationError{Field: "price", Message: fmt.Sprintf("currency must be %s", currency)}
	case !p.Status.Valid():
		return ValidationError{Field: "status", Message: "unknown plan status"}
	}
	if p.CompareAtPrice != nil {
		if p.CompareAtPrice.Currency != currency {
			return ValidationError{Field: "compare_at_price", Message: fmt.Sprintf("currency must be %s", currency)}
		}
		if p.CompareAtPrice.LessThan(p.Price) {
			return ValidationError{Field: "compare_at_price", Message: "must not undercut price"}
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Purchasing
// ──────────────────────────────────────────────────

// Receipt is the result of a successful purchase: the issued subscription
// joined with the plan it snapshotted, ready for display.
type Receipt struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Plan         *plan.Plan                 `json:"plan"`
}

// Purchase issues a subscription for the given plan. The paid amount must
// match the plan price within one minor unit, and the customer must not hold
// another live subscription of overlapping scope.
func (e *Engine) Purchase(ctx context.Context, customerID id.CustomerID, planID id.PlanID, amountPaid types.Money) (*Receipt, error) {
	if customerID.IsNil() {
		return nil, ValidationError{Field: "customer_id", Message: "required"}
	}

	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, ErrPlanInactive
	}

	if amountPaid.Currency != p.Price.Currency || !amountPaid.Within(p.Price, priceTolerance) {
		return nil, PriceMismatchError{Want: p.Price, Got: amountPaid}
	}

	now := time.Now().UTC()

	blocking, err := e.store.FindBlockingSubscriptions(ctx, customerID, p.Scope, now)
	if err != nil {
		return nil, err
	}
	// Counters decide liveness, not stored status: an ACTIVE row with no
	// vouchers left does not block a new purchase.
	for _, b := range blocking {
		if !b.IsExhausted() {
			return nil, fmt.Errorf("%w: subscription %s covers %s until %s",
				ErrSubscriptionConflict, b.ID, b.Scope, b.ExpiresAt.Format(time.RFC3339))
		}
	}

	sub := &subscription.Subscription{
		Entity:        types.NewEntity(),
		ID:            id.NewSubscriptionID(),
		CustomerID:    customerID,
		PlanID:        p.ID,
		Scope:         p.Scope,
		DurationDays:  p.Duration.Days(),
		TotalVouchers: p.VoucherCount,
		UsedVouchers:  0,
		AmountPaid:    amountPaid,
		PurchasedAt:   now,
		ExpiresAt:     now.AddDate(0, 0, p.Duration.Days()),
		Status:        subscription.StatusActive,
	}

	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	e.plugins.EmitSubscriptionPurchased(ctx, sub)
	return &Receipt{Subscription: sub, Plan: p}, nil
}

// ──────────────────────────────────────────────────
// Voucher Redemption
// ──────────────────────────────────────────────────

// UseVoucher redeems one voucher from the subscription. The decrement is a
// single conditional write keyed on the counter value just read; losing that
// race triggers a bounded re-read-and-retry, so N concurrent calls against k
// remaining vouchers succeed exactly k times.
//
// A record past its window or counter limit is lazily corrected to
// EXPIRED/EXHAUSTED on the way out; the correction is best-effort and the
// caller gets the terminal error either way.
func (e *Engine) UseVoucher(ctx context.Context, customerID id.CustomerID, subID id.SubscriptionID) (*subscription.Subscription, error) {
	for attempt := 0; attempt <= e.consumeRetries; attempt++ {
		sub, err := e.loadOwned(ctx, customerID, subID)
		if err != nil {
			return nil, err
		}

		if err := e.checkRedeemable(ctx, sub); err != nil {
			return nil, err
		}

		newStatus := subscription.StatusActive
		if sub.UsedVouchers+1 >= sub.TotalVouchers {
			newStatus = subscription.StatusExhausted
		}

		err = e.store.ConsumeVoucher(ctx, subID, sub.UsedVouchers, newStatus)
		if errors.Is(err, ErrStaleRecord) {
			e.logger.Debug("voucher consume lost race, retrying",
				"subscription_id", subID.String(),
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		sub.UsedVouchers++
		sub.Status = newStatus
		sub.Touch()

		e.enqueueRedemption(sub)
		e.plugins.EmitVoucherRedeemed(ctx, sub)
		if newStatus == subscription.StatusExhausted {
			e.plugins.EmitSubscriptionExhausted(ctx, sub)
		}

		return sub, nil
	}

	return nil, fmt.Errorf("redeem voucher for %s: %w", subID, ErrStaleRecord)
}

// checkRedeemable returns the terminal error for a non-redeemable record,
// lazily correcting the stored status when the stored ACTIVE has silently
// lapsed or run out.
func (e *Engine) checkRedeemable(ctx context.Context, sub *subscription.Subscription) error {
	switch sub.Status {
	case subscription.StatusExpired:
		return ErrSubscriptionExpired
	case subscription.StatusExhausted:
		return ErrVouchersExhausted
	case subscription.StatusCancelled:
		return InvalidStateError{Status: subscription.StatusCancelled}
	}

	now := time.Now().UTC()

	if sub.IsExpired(now) {
		e.correctStatus(ctx, sub, subscription.StatusExpired)
		return ErrSubscriptionExpired
	}
	if sub.IsExhausted() {
		e.correctStatus(ctx, sub, subscription.StatusExhausted)
		return ErrVouchersExhausted
	}

	return nil
}

// correctStatus applies a lazy ACTIVE→terminal correction. Failure is logged
// and swallowed: the caller's answer does not depend on the write landing,
// and a concurrent corrector may have already won.
func (e *Engine) correctStatus(ctx context.Context, sub *subscription.Subscription, to subscription.Status) {
	err := e.store.TransitionStatus(ctx, sub.ID, subscription.StatusActive, to)
	if err != nil {
		if !errors.Is(err, ErrStaleRecord) {
			e.logger.Warn("lazy status correction failed",
				"subscription_id", sub.ID.String(),
				"target_status", string(to),
				"error", err,
			)
		}
		return
	}

	sub.Status = to
	switch to {
	case subscription.StatusExpired:
		e.plugins.EmitSubscriptionExpired(ctx, sub)
	case subscription.StatusExhausted:
		e.plugins.EmitSubscriptionExhausted(ctx, sub)
	}
}

// loadOwned fetches a subscription and verifies ownership. Records owned by
// someone else and soft-deleted records both read as not found.
func (e *Engine) loadOwned(ctx context.Context, customerID id.CustomerID, subID id.SubscriptionID) (*subscription.Subscription, error) {
	if customerID.IsNil() {
		return nil, ValidationError{Field: "customer_id", Message: "required"}
	}

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.CustomerID.String() != customerID.String() || sub.IsDeleted() {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// ──────────────────────────────────────────────────
// Cancellation
// ──────────────────────────────────────────────────

// Cancel voluntarily terminates an ACTIVE subscription. Terminal states are
// rejected, including a repeat cancel.
func (e *Engine) Cancel(ctx context.Context, customerID id.CustomerID, subID id.SubscriptionID) (*subscription.Subscription, error) {
	for attempt := 0; attempt <= e.consumeRetries; attempt++ {
		sub, err := e.loadOwned(ctx, customerID, subID)
		if err != nil {
			return nil, err
		}

		switch sub.Status {
		case subscription.StatusCancelled:
			return nil, ErrAlreadyCancelled
		case subscription.StatusExpired:
			return nil, ErrSubscriptionExpired
		case subscription.StatusExhausted:
			return nil, ErrVouchersExhausted
		}

		now := time.Now().UTC()
		if sub.IsExpired(now) {
			e.correctStatus(ctx, sub, subscription.StatusExpired)
			return nil, ErrSubscriptionExpired
		}

		err = e.store.TransitionStatus(ctx, subID, subscription.StatusActive, subscription.StatusCancelled)
		if errors.Is(err, ErrStaleRecord) {
			continue
		}
		if err != nil {
			return nil, err
		}

		sub.Status = subscription.StatusCancelled
		sub.Touch()
		e.plugins.EmitSubscriptionCanceled(ctx, sub)
		return sub, nil
	}

	return nil, fmt.Errorf("cancel %s: %w", subID, ErrStaleRecord)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// ActiveForScope returns the customer's subscriptions that can redeem a
// voucher for the given meal window right now. A BOTH subscription satisfies
// lunch and dinner requests alike. Read-only: lapsed records are filtered
// out, not corrected.
func (e *Engine) ActiveForScope(ctx context.Context, customerID id.CustomerID, scope plan.Scope) ([]*subscription.Subscription, error) {
	if customerID.IsNil() {
		return nil, ValidationError{Field: "customer_id", Message: "required"}
	}
	if !scope.Valid() {
		return nil, ValidationError{Field: "scope", Message: "must be both, lunch or dinner"}
	}
	return e.store.ListUsableSubscriptions(ctx, customerID, scope, time.Now().UTC())
}

// ListSubscriptions lists a customer's own subscription history, newest
// first. Soft-deleted records are hidden.
func (e *Engine) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	if customerID.IsNil() {
		return nil, ValidationError{Field: "customer_id", Message: "required"}
	}
	if !opts.Sort.Valid() {
		return nil, ValidationError{Field: "sort", Message: "unknown sort order"}
	}
	opts.CustomerID = customerID
	opts.IncludeDeleted = false
	return e.store.ListSubscriptions(ctx, opts)
}

// ──────────────────────────────────────────────────
// Admin Operations
// ──────────────────────────────────────────────────

// AdminListSubscriptions lists subscriptions across all customers, with
// optional status/customer/plan filters and soft-deleted records on request.
func (e *Engine) AdminListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, ValidationError{Field: "status", Message: "unknown subscription status"}
	}
	if !opts.Sort.Valid() {
		return nil, ValidationError{Field: "sort", Message: "unknown sort order"}
	}
	return e.store.ListSubscriptions(ctx, opts)
}

// AdminGetSubscription fetches any subscription regardless of owner or
// deletion state.
func (e *Engine) AdminGetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// SetSubscriptionStatus unconditionally overrides a subscription's status.
// The target must be a known status value; no transition rules apply.
func (e *Engine) SetSubscriptionStatus(ctx context.Context, subID id.SubscriptionID, status subscription.Status) error {
	if !status.Valid() {
		return ValidationError{Field: "status", Message: "unknown subscription status"}
	}
	return e.store.SetSubscriptionStatus(ctx, subID, status)
}

// SoftDeleteSubscription hides a subscription from customer-facing reads.
// The record and its counters survive for reporting.
func (e *Engine) SoftDeleteSubscription(ctx context.Context, subID id.SubscriptionID) error {
	return e.store.SetSubscriptionDeleted(ctx, subID, true)
}

// RestoreSubscription reverses a soft delete.
func (e *Engine) RestoreSubscription(ctx context.Context, subID id.SubscriptionID) error {
	return e.store.SetSubscriptionDeleted(ctx, subID, false)
}

// ──────────────────────────────────────────────────
// Expiry Sweep
// ──────────────────────────────────────────────────

// SweepExpired bulk-transitions every lapsed ACTIVE subscription to EXPIRED
// and returns the number changed. Idempotent: a rerun with no lapsed records
// changes nothing and returns zero. Scheduling is the caller's business.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()

	count, err := e.store.SweepExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		e.logger.Info("expiry sweep completed", "expired", count)
	}
	e.plugins.EmitSweepCompleted(ctx, count)

	return count, nil
}

// ──────────────────────────────────────────────────
// Statistics
// ──────────────────────────────────────────────────

// Stats computes the ledger-wide rollup. Values are read-time projections;
// counts reflect stored statuses as-is.
func (e *Engine) Stats(ctx context.Context, opts stats.Opts) (*stats.Overview, error) {
	return e.store.Stats(ctx, opts)
}

// ──────────────────────────────────────────────────
// Redemption Log
// ──────────────────────────────────────────────────

// QueryRedemptions reads the redemption audit log.
func (e *Engine) QueryRedemptions(ctx context.Context, opts redemption.QueryOpts) ([]*redemption.Event, error) {
	return e.store.QueryRedemptions(ctx, opts)
}

// PurgeRedemptions deletes log entries older than the cutoff and returns
// the number removed. Subscription counters are untouched.
func (e *Engine) PurgeRedemptions(ctx context.Context, before time.Time) (int64, error) {
	return e.store.PurgeRedemptions(ctx, before)
}

// enqueueRedemption buffers an audit log entry for a successful redemption
// (non-blocking). A full buffer drops the entry with a warning; the
// subscription counters are the store of record either way.
func (e *Engine) enqueueRedemption(sub *subscription.Subscription) {
	event := &redemption.Event{
		ID:             id.NewRedemptionID(),
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		PlanID:         sub.PlanID,
		RemainingAfter: sub.Remaining(),
		Timestamp:      time.Now().UTC(),
	}

	select {
	case e.redemptionBuffer <- event:
	default:
		e.logger.Warn("redemption buffer full, dropping log entry",
			"subscription_id", sub.ID.String(),
		)
	}
}

// redemptionFlushWorker flushes buffered redemption events to the store.
func (e *Engine) redemptionFlushWorker(ctx context.Context) {
	defer e.wg.Done()

	batch := make([]*redemption.Event, 0, e.redemptionBatchSize)
	ticker := time.NewTicker(e.redemptionFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			// Final flush
			if len(batch) > 0 {
				e.flushRedemptionBatch(ctx, batch)
			}
			return

		case event := <-e.redemptionBuffer:
			batch = append(batch, event)
			if len(batch) >= e.redemptionBatchSize {
				e.flushRedemptionBatch(ctx, batch)
				batch = make([]*redemption.Event, 0, e.redemptionBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				e.flushRedemptionBatch(ctx, batch)
				batch = make([]*redemption.Event, 0, e.redemptionBatchSize)
			}
		}
	}
}

func (e *Engine) flushRedemptionBatch(ctx context.Context, batch []*redemption.Event) {
	start := time.Now()

	if err := e.store.RecordRedemptions(ctx, batch); err != nil {
		e.logger.Error("failed to flush redemption batch",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	e.plugins.EmitRedemptionsFlushed(ctx, len(batch), elapsed)

	e.logger.Debug("flushed redemption batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}
