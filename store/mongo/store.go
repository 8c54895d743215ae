// Package mongo implements the MealPass store on MongoDB via Grove ORM.
// Conditional voucher writes map onto single-document filtered updates, which
// MongoDB applies atomically.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	mealpass "github.com/mealvine/mealpass"
	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
	"github.com/mealvine/mealpass/redemption"
	"github.com/mealvine/mealpass/stats"
	mealstore "github.com/mealvine/mealpass/store"
	"github.com/mealvine/mealpass/subscription"
	"github.com/mealvine/mealpass/types"
)

// Collection name constants.
const (
	colPlans         = "mealpass_plans"
	colSubscriptions = "mealpass_subscriptions"
	colRedemptions   = "mealpass_redemptions"
)

// compile-time interface check
var _ mealstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all MealPass collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("mealpass/mongo: migrate %s indexes: %w: %w", col, mealpass.ErrMigrationFailed, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, mealpass.ErrPlanNotFound
		}
		return nil, fmt.Errorf("mealpass/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) FindActivePlan(ctx context.Context, name string, duration plan.Duration, scope plan.Scope) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"name":          name,
			"duration_days": duration.Days(),
			"scope":         string(scope),
			"status":        string(plan.StatusActive),
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, mealpass.ErrPlanNotFound
		}
		return nil, fmt.Errorf("mealpass/mongo: find active plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("mealpass/mongo: list plans: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: update plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return mealpass.ErrPlanNotFound
	}
	return nil
}

func (s *Store) SetPlanStatus(ctx context.Context, planID id.PlanID, status plan.Status) error {
	t := now()
	res, err := s.mdb.NewUpdate((*planModel)(nil)).
		Filter(bson.M{"_id": planID.String()}).
		Set("status", string(status)).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: set plan status: %w", err)
	}
	if res.MatchedCount() == 0 {
		return mealpass.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, mealpass.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("mealpass/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if !opts.IncludeDeleted {
		filter["deleted_at"] = nil
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}
	if !opts.PlanID.IsNil() {
		filter["plan_id"] = opts.PlanID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(sortSpec(opts.Sort))

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("mealpass/mongo: list subscriptions: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return mealpass.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) FindBlockingSubscriptions(ctx context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{
		"customer_id": customerID.String(),
		"status":      string(subscription.StatusActive),
		"expires_at":  bson.M{"$gt": now},
		"deleted_at":  nil,
	}
	// A BOTH purchase collides with every live scope; a single-scope
	// purchase collides with the same scope and with BOTH.
	if scope != plan.ScopeBoth {
		filter["scope"] = bson.M{"$in": []string{string(scope), string(plan.ScopeBoth)}}
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "purchased_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("mealpass/mongo: find blocking subscriptions: %w", err)
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

	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"customer_id": customerID.String(),
			"status":      string(subscription.StatusActive),
			"expires_at":  bson.M{"$gt": now},
			"deleted_at":  nil,
			"scope":       bson.M{"$in": []string{string(scope), string(plan.ScopeBoth)}},
			"$expr":       bson.M{"$lt": bson.A{"$used_vouchers", "$total_vouchers"}},
		}).
		Sort(bson.D{{Key: "expires_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("mealpass/mongo: list usable subscriptions: %w", err)
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
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{
			"_id":           subID.String(),
			"status":        string(subscription.StatusActive),
			"used_vouchers": expectedUsed,
			"deleted_at":    nil,
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"used_vouchers": 1},
			"$set": bson.M{
				"status":     string(newStatus),
				"updated_at": t,
			},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: consume voucher: %w", err)
	}
	if res.MatchedCount() == 0 {
		return mealpass.ErrStaleRecord
	}
	return nil
}

func (s *Store) TransitionStatus(ctx context.Context, subID id.SubscriptionID, from, to subscription.Status) error {
	t := now()
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{
			"_id":    subID.String(),
			"status": string(from),
		}).
		Set("status", string(to)).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: transition status: %w", err)
	}
	if res.MatchedCount() == 0 {
		return mealpass.ErrStaleRecord
	}
	return nil
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, subID id.SubscriptionID, status subscription.Status) error {
	t := now()
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Set("status", string(status)).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: set subscription status: %w", err)
	}
	if res.MatchedCount() == 0 {
		return mealpass.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) SetSubscriptionDeleted(ctx context.Context, subID id.SubscriptionID, deleted bool) error {
	t := now()
	update := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Set("updated_at", t)
	if deleted {
		update = update.Set("deleted_at", t)
	} else {
		update = update.Set("deleted_at", nil)
	}
	res, err := update.Exec(ctx)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: set subscription deleted: %w", err)
	}
	if res.MatchedCount() == 0 {
		return mealpass.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.mdb.Collection(colSubscriptions).UpdateMany(ctx,
		bson.M{
			"status":     string(subscription.StatusActive),
			"expires_at": bson.M{"$lte": now},
			"deleted_at": nil,
		},
		bson.M{"$set": bson.M{
			"status":     string(subscription.StatusExpired),
			"updated_at": now.UTC(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("mealpass/mongo: sweep expired: %w", err)
	}
	return res.ModifiedCount, nil
}

// ==================== Redemption Log Store ====================

func (s *Store) RecordRedemptions(ctx context.Context, events []*redemption.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		m := toRedemptionEventModel(e)
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			// Skip duplicates so a replayed flush batch stays idempotent
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("mealpass/mongo: record redemption: %w", err)
		}
	}
	return nil
}

func (s *Store) QueryRedemptions(ctx context.Context, opts redemption.QueryOpts) ([]*redemption.Event, error) {
	var models []redemptionEventModel

	filter := bson.M{}
	if !opts.SubscriptionID.IsNil() {
		filter["subscription_id"] = opts.SubscriptionID.String()
	}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}
	if !opts.Start.IsZero() {
		if _, ok := filter["timestamp"]; !ok {
			filter["timestamp"] = bson.M{}
		}
		if ts, ok := filter["timestamp"].(bson.M); ok {
			ts["$gte"] = opts.Start
		}
	}
	if !opts.End.IsZero() {
		if _, ok := filter["timestamp"]; !ok {
			filter["timestamp"] = bson.M{}
		}
		if ts, ok := filter["timestamp"].(bson.M); ok {
			ts["$lte"] = opts.End
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("mealpass/mongo: query redemptions: %w", err)
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
	res, err := s.mdb.NewDelete((*redemptionEventModel)(nil)).
		Filter(bson.M{"timestamp": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("mealpass/mongo: purge redemptions: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Statistics Store ====================

func (s *Store) Stats(ctx context.Context, opts stats.Opts) (*stats.Overview, error) {
	match := bson.M{}
	if !opts.IncludeDeleted {
		match["deleted_at"] = nil
	}

	totalsPipeline := bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{
			"_id":      nil,
			"total":    bson.M{"$sum": 1},
			"revenue":  bson.M{"$sum": "$amount_paid_cents"},
			"currency": bson.M{"$max": "$amount_paid_currency"},
			"issued":   bson.M{"$sum": "$total_vouchers"},
			"used":     bson.M{"$sum": "$used_vouchers"},
		}},
	}
	var totals []struct {
		Total    int64  `bson:"total"`
		Revenue  int64  `bson:"revenue"`
		Currency string `bson:"currency"`
		Issued   int64  `bson:"issued"`
		Used     int64  `bson:"used"`
	}
	if err := s.aggregate(ctx, totalsPipeline, &totals); err != nil {
		return nil, err
	}

	statusPipeline := bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}},
	}
	var statusRows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := s.aggregate(ctx, statusPipeline, &statusRows); err != nil {
		return nil, err
	}

	planPipeline := bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{
			"_id":           "$plan_id",
			"subscriptions": bson.M{"$sum": 1},
			"revenue":       bson.M{"$sum": "$amount_paid_cents"},
			"issued":        bson.M{"$sum": "$total_vouchers"},
			"used":          bson.M{"$sum": "$used_vouchers"},
		}},
		bson.M{"$lookup": bson.M{
			"from":         colPlans,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "plan",
		}},
		bson.M{"$addFields": bson.M{
			"plan_name": bson.M{"$ifNull": bson.A{
				bson.M{"$first": "$plan.name"}, "",
			}},
		}},
		bson.M{"$sort": bson.M{"subscriptions": -1}},
	}
	var planRows []struct {
		PlanID        string `bson:"_id"`
		PlanName      string `bson:"plan_name"`
		Subscriptions int64  `bson:"subscriptions"`
		Revenue       int64  `bson:"revenue"`
		Issued        int64  `bson:"issued"`
		Used          int64  `bson:"used"`
	}
	if err := s.aggregate(ctx, planPipeline, &planRows); err != nil {
		return nil, err
	}

	currency := "inr"
	overview := &stats.Overview{
		CountsByStatus: make(map[string]int64, len(statusRows)),
	}
	if len(totals) > 0 {
		t := totals[0]
		if t.Currency != "" {
			currency = t.Currency
		}
		overview.TotalSubscriptions = t.Total
		overview.RevenueTotal = types.Money{Amount: t.Revenue, Currency: currency}
		overview.VouchersIssued = t.Issued
		overview.VouchersUsed = t.Used
		if t.Total > 0 {
			overview.RevenueAverage = overview.RevenueTotal.Divide(t.Total)
		}
		if t.Issued > 0 {
			overview.RedemptionRate = float64(t.Used) / float64(t.Issued)
		}
	}
	if overview.RevenueTotal.Currency == "" {
		overview.RevenueTotal = types.Zero(currency)
	}
	if overview.RevenueAverage.Currency == "" {
		overview.RevenueAverage = types.Zero(currency)
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
			Revenue:        types.Money{Amount: row.Revenue, Currency: currency},
			VouchersIssued: row.Issued,
			VouchersUsed:   row.Used,
		})
	}
	return overview, nil
}

// aggregate runs a pipeline against the subscriptions collection and decodes
// all result documents into out.
func (s *Store) aggregate(ctx context.Context, pipeline bson.A, out any) error {
	cursor, err := s.mdb.Collection(colSubscriptions).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("mealpass/mongo: aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("mealpass/mongo: aggregate decode: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all MealPass collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{
				Keys: bson.D{{Key: "name", Value: 1}, {Key: "duration_days", Value: 1}, {Key: "scope", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": "active"}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
			{Keys: bson.D{{Key: "plan_id", Value: 1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "purchased_at", Value: -1}}},
		},
		colRedemptions: {
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}
}

// sortSpec maps a list sort option to its Mongo sort document.
func sortSpec(s subscription.Sort) bson.D {
	switch s {
	case subscription.SortPurchasedAsc:
		return bson.D{{Key: "purchased_at", Value: 1}}
	case subscription.SortExpiresAsc:
		return bson.D{{Key: "expires_at", Value: 1}}
	case subscription.SortExpiresDesc:
		return bson.D{{Key: "expires_at", Value: -1}}
	default:
		return bson.D{{Key: "purchased_at", Value: -1}}
	}
}
