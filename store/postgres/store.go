// Package postgres implements the MealPass store on PostgreSQL via Grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	mealpass "github.com/mealvine/mealpass"
	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
	"github.com/mealvine/mealpass/redemption"
	"github.com/mealvine/mealpass/stats"
	mealstore "github.com/mealvine/mealpass/store"
	"github.com/mealvine/mealpass/subscription"
	"github.com/mealvine/mealpass/types"
)

// compile-time interface check
var _ mealstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("mealpass/postgres: create migration executor: %w: %w", mealpass.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("mealpass/postgres: %w: %w", mealpass.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	if err != nil {
		return err
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, mealpass.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (s *Store) FindActivePlan(ctx context.Context, name string, duration plan.Duration, scope plan.Scope) (*plan.Plan, error) {
	m := new(planModel)
	err := s.pg.NewSelect(m).
		Where("name = $1", name).
		Where("duration_days = $2", duration.Days()).
		Where("scope = $3", string(scope)).
		Where("status = $4", string(plan.StatusActive)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, mealpass.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return mealpass.ErrPlanNotFound
	}
	return nil
}

func (s *Store) SetPlanStatus(ctx context.Context, planID id.PlanID, status plan.Status) error {
	t := now()
	res, err := s.pg.NewUpdate((*planModel)(nil)).
		Set("status = $1", string(status)).
		Set("updated_at = $2", t).
		Where("id = $3", planID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return mealpass.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, mealpass.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.CustomerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("customer_id = $%d", argIdx), opts.CustomerID.String())
	}
	if !opts.PlanID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("plan_id = $%d", argIdx), opts.PlanID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr(orderExpr(opts.Sort))

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return mealpass.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) FindBlockingSubscriptions(ctx context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models).
		Where("customer_id = $1", customerID.String()).
		Where("status = $2", string(subscription.StatusActive)).
		Where("expires_at > $3", now).
		Where("deleted_at IS NULL")

	// A BOTH purchase collides with every live scope; a single-scope
	// purchase collides with the same scope and with BOTH.
	if scope != plan.ScopeBoth {
		q = q.Where("scope IN ($4, $5)", string(scope), string(plan.ScopeBoth))
	}
	q = q.OrderExpr("purchased_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) ListUsableSubscriptions(ctx context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.pg.NewSelect(&models).
		Where("customer_id = $1", customerID.String()).
		Where("status = $2", string(subscription.StatusActive)).
		Where("expires_at > $3", now).
		Where("used_vouchers < total_vouchers").
		Where("deleted_at IS NULL").
		Where("scope IN ($4, $5)", string(scope), string(plan.ScopeBoth)).
		OrderExpr("expires_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) ConsumeVoucher(ctx context.Context, subID id.SubscriptionID, expectedUsed int, newStatus subscription.Status) error {
	t := now()
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("used_vouchers = used_vouchers + 1").
		Set("status = $1", string(newStatus)).
		Set("updated_at = $2", t).
		Where("id = $3", subID.String()).
		Where("status = $4", string(subscription.StatusActive)).
		Where("used_vouchers = $5", expectedUsed).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return mealpass.ErrStaleRecord
	}
	return nil
}

func (s *Store) TransitionStatus(ctx context.Context, subID id.SubscriptionID, from, to subscription.Status) error {
	t := now()
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", t).
		Where("id = $3", subID.String()).
		Where("status = $4", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return mealpass.ErrStaleRecord
	}
	return nil
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, subID id.SubscriptionID, status subscription.Status) error {
	t := now()
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(status)).
		Set("updated_at = $2", t).
		Where("id = $3", subID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return mealpass.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) SetSubscriptionDeleted(ctx context.Context, subID id.SubscriptionID, deleted bool) error {
	t := now()
	q := s.pg.NewUpdate((*subscriptionModel)(nil))
	if deleted {
		q = q.Set("deleted_at = $1", t).
			Set("updated_at = $2", t).
			Where("id = $3", subID.String())
	} else {
		q = q.Set("deleted_at = NULL").
			Set("updated_at = $1", t).
			Where("id = $2", subID.String())
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return mealpass.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(subscription.StatusExpired)).
		Set("updated_at = $2", now.UTC()).
		Where("status = $3", string(subscription.StatusActive)).
		Where("expires_at <= $4", now).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// ==================== Redemption Log Store ====================

func (s *Store) RecordRedemptions(ctx context.Context, events []*redemption.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]redemptionEventModel, len(events))
	for i, e := range events {
		models[i] = *toRedemptionEventModel(e)
	}
	_, err := s.pg.NewInsert(&models).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) QueryRedemptions(ctx context.Context, opts redemption.QueryOpts) ([]*redemption.Event, error) {
	var models []redemptionEventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.SubscriptionID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("subscription_id = $%d", argIdx), opts.SubscriptionID.String())
	}
	if !opts.CustomerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("customer_id = $%d", argIdx), opts.CustomerID.String())
	}
	if !opts.Start.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp >= $%d", argIdx), opts.Start)
	}
	if !opts.End.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp <= $%d", argIdx), opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*redemption.Event, len(models))
	for i := range models {
		evt, err := fromRedemptionEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

func (s *Store) PurgeRedemptions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*redemptionEventModel)(nil)).
		Where("timestamp < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// ==================== Statistics Store ====================

func (s *Store) Stats(ctx context.Context, opts stats.Opts) (*stats.Overview, error) {
	deletedFilter := "WHERE deleted_at IS NULL"
	planDeletedFilter := "WHERE s.deleted_at IS NULL"
	if opts.IncludeDeleted {
		deletedFilter = ""
		planDeletedFilter = ""
	}

	var totals ledgerTotalsRow
	err := s.pg.NewRaw(fmt.Sprintf(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(amount_paid_cents), 0) AS revenue_cents,
		       COALESCE(MAX(amount_paid_currency), 'inr') AS currency,
		       COALESCE(SUM(total_vouchers), 0) AS issued,
		       COALESCE(SUM(used_vouchers), 0) AS used
		FROM mealpass_subscriptions %s
	`, deletedFilter)).Scan(ctx, &totals)
	if err != nil {
		return nil, err
	}

	var statusRows []statusCountRow
	err = s.pg.NewRaw(fmt.Sprintf(`
		SELECT status, COUNT(*) AS count
		FROM mealpass_subscriptions %s
		GROUP BY status
	`, deletedFilter)).Scan(ctx, &statusRows)
	if err != nil {
		return nil, err
	}

	var planRows []planStatsRow
	err = s.pg.NewRaw(fmt.Sprintf(`
		SELECT s.plan_id,
		       COALESCE(MAX(p.name), '') AS plan_name,
		       COUNT(*) AS subscriptions,
		       COALESCE(SUM(s.amount_paid_cents), 0) AS revenue_cents,
		       COALESCE(SUM(s.total_vouchers), 0) AS vouchers_issued,
		       COALESCE(SUM(s.used_vouchers), 0) AS vouchers_used
		FROM mealpass_subscriptions s
		LEFT JOIN mealpass_plans p ON p.id = s.plan_id
		%s
		GROUP BY s.plan_id
		ORDER BY subscriptions DESC
	`, planDeletedFilter)).Scan(ctx, &planRows)
	if err != nil {
		return nil, err
	}

	overview := &stats.Overview{
		TotalSubscriptions: totals.Total,
		CountsByStatus:     make(map[string]int64, len(statusRows)),
		RevenueTotal:       types.Money{Amount: totals.RevenueCents, Currency: totals.Currency},
		RevenueAverage:     types.Zero(totals.Currency),
		VouchersIssued:     totals.Issued,
		VouchersUsed:       totals.Used,
	}
	if totals.Total > 0 {
		overview.RevenueAverage = overview.RevenueTotal.Divide(totals.Total)
	}
	if totals.Issued > 0 {
		overview.RedemptionRate = float64(totals.Used) / float64(totals.Issued)
	}
	for _, row := range statusRows {
		overview.CountsByStatus[row.Status] = row.Count
	}

	overview.PerPlan = make([]stats.PlanBreakdown, 0, len(planRows))
	for _, row := range planRows {
		planID, err := id.ParsePlanID(row.PlanID)
		if err != nil {
			return nil, err
		}
		overview.PerPlan = append(overview.PerPlan, stats.PlanBreakdown{
			PlanID:         planID,
			PlanName:       row.PlanName,
			Subscriptions:  row.Subscriptions,
			Revenue:        types.Money{Amount: row.RevenueCents, Currency: totals.Currency},
			VouchersIssued: row.VouchersIssued,
			VouchersUsed:   row.VouchersUsed,
		})
	}
	return overview, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// orderExpr maps a list sort option to its ORDER BY expression.
func orderExpr(s subscription.Sort) string {
	switch s {
	case subscription.SortPurchasedAsc:
		return "purchased_at ASC"
	case subscription.SortExpiresAsc:
		return "expires_at ASC"
	case subscription.SortExpiresDesc:
		return "expires_at DESC"
	default:
		return "purchased_at DESC"
	}
}
