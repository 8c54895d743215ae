package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mealvine/mealpass"
	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
	"github.com/mealvine/mealpass/redemption"
	"github.com/mealvine/mealpass/stats"
	"github.com/mealvine/mealpass/subscription"
	"github.com/mealvine/mealpass/types"
)

type Store struct {
	mu sync.RWMutex

	// Plan storage
	plans map[string]*plan.Plan

	// Subscription storage
	subscriptions map[string]*subscription.Subscription

	// Redemption log storage
	redemptions []redemption.Event
}

func New() *Store {
	return &Store{
		plans:         make(map[string]*plan.Plan),
		subscriptions: make(map[string]*subscription.Subscription),
		redemptions:   make([]redemption.Event, 0),
	}
}

// Plan Store implementation
func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; exists {
		return mealpass.ErrAlreadyExists
	}
	cp := *p
	s.plans[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, mealpass.ErrPlanNotFound
}

func (s *Store) FindActivePlan(_ context.Context, name string, duration plan.Duration, scope plan.Scope) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if p.Status == plan.StatusActive && p.Name == name && p.Duration == duration && p.Scope == scope {
			cp := *p
			return &cp, nil
		}
	}
	return nil, mealpass.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.Plan, 0)
	for _, p := range s.plans {
		if opts.Status == "" || p.Status == opts.Status {
			cp := *p
			result = append(result, &cp)
		}
	}

	// Stable order for pagination
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; !exists {
		return mealpass.ErrPlanNotFound
	}
	cp := *p
	s.plans[p.ID.String()] = &cp
	return nil
}

func (s *Store) SetPlanStatus(_ context.Context, planID id.PlanID, status plan.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, exists := s.plans[planID.String()]; exists {
		p.Status = status
		p.Touch()
		return nil
	}
	return mealpass.ErrPlanNotFound
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return mealpass.ErrAlreadyExists
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, mealpass.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if !opts.IncludeDeleted && sub.IsDeleted() {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		if !opts.CustomerID.IsNil() && sub.CustomerID.String() != opts.CustomerID.String() {
			continue
		}
		if !opts.PlanID.IsNil() && sub.PlanID.String() != opts.PlanID.String() {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}

	switch opts.Sort {
	case subscription.SortPurchasedAsc:
		sort.Slice(result, func(i, j int) bool {
			return result[i].PurchasedAt.Before(result[j].PurchasedAt)
		})
	case subscription.SortExpiresAsc:
		sort.Slice(result, func(i, j int) bool {
			return result[i].ExpiresAt.Before(result[j].ExpiresAt)
		})
	case subscription.SortExpiresDesc:
		sort.Slice(result, func(i, j int) bool {
			return result[i].ExpiresAt.After(result[j].ExpiresAt)
		})
	default:
		// Newest purchases first
		sort.Slice(result, func(i, j int) bool {
			return result[i].PurchasedAt.After(result[j].PurchasedAt)
		})
	}

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return mealpass.ErrSubscriptionNotFound
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) FindBlockingSubscriptions(_ context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.CustomerID.String() != customerID.String() || sub.IsDeleted() {
			continue
		}
		if sub.Status != subscription.StatusActive || sub.IsExpired(now) {
			continue
		}
		if sub.Scope.Overlaps(scope) {
			cp := *sub
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *Store) ListUsableSubscriptions(_ context.Context, customerID id.CustomerID, scope plan.Scope, now time.Time) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.CustomerID.String() != customerID.String() {
			continue
		}
		if !sub.Usable(now) || !sub.Scope.Satisfies(scope) {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}

	// Soonest expiry first, so callers burn the most urgent pass
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})

	return result, nil
}

func (s *Store) ConsumeVoucher(_ context.Context, subID id.SubscriptionID, expectedUsed int, newStatus subscription.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscriptions[subID.String()]
	if !exists {
		return mealpass.ErrSubscriptionNotFound
	}
	if sub.Status != subscription.StatusActive || sub.UsedVouchers != expectedUsed || sub.IsDeleted() {
		return mealpass.ErrStaleRecord
	}
	sub.UsedVouchers++
	sub.Status = newStatus
	sub.Touch()
	return nil
}

func (s *Store) TransitionStatus(_ context.Context, subID id.SubscriptionID, from, to subscription.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscriptions[subID.String()]
	if !exists {
		return mealpass.ErrSubscriptionNotFound
	}
	if sub.Status != from {
		return mealpass.ErrStaleRecord
	}
	sub.Status = to
	sub.Touch()
	return nil
}

func (s *Store) SetSubscriptionStatus(_ context.Context, subID id.SubscriptionID, status subscription.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, exists := s.subscriptions[subID.String()]; exists {
		sub.Status = status
		sub.Touch()
		return nil
	}
	return mealpass.ErrSubscriptionNotFound
}

func (s *Store) SetSubscriptionDeleted(_ context.Context, subID id.SubscriptionID, deleted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscriptions[subID.String()]
	if !exists {
		return mealpass.ErrSubscriptionNotFound
	}
	if deleted {
		now := time.Now().UTC()
		sub.DeletedAt = &now
	} else {
		sub.DeletedAt = nil
	}
	sub.Touch()
	return nil
}

func (s *Store) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, sub := range s.subscriptions {
		if sub.Status == subscription.StatusActive && !sub.IsDeleted() && sub.IsExpired(now) {
			sub.Status = subscription.StatusExpired
			sub.Touch()
			count++
		}
	}
	return count, nil
}

// Redemption Store implementation
func (s *Store) RecordRedemptions(_ context.Context, events []*redemption.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.redemptions = append(s.redemptions, *e)
	}
	return nil
}

func (s *Store) QueryRedemptions(_ context.Context, opts redemption.QueryOpts) ([]*redemption.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*redemption.Event, 0)
	for i := range s.redemptions {
		e := s.redemptions[i]
		if !opts.SubscriptionID.IsNil() && e.SubscriptionID.String() != opts.SubscriptionID.String() {
			continue
		}
		if !opts.CustomerID.IsNil() && e.CustomerID.String() != opts.CustomerID.String() {
			continue
		}
		if !opts.Start.IsZero() && e.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !e.Timestamp.Before(opts.End) {
			continue
		}
		cp := e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) PurgeRedemptions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	kept := make([]redemption.Event, 0, len(s.redemptions))
	for _, e := range s.redemptions {
		if e.Timestamp.Before(before) {
			count++
		} else {
			kept = append(kept, e)
		}
	}
	s.redemptions = kept
	return count, nil
}

// Statistics implementation
func (s *Store) Stats(_ context.Context, opts stats.Opts) (*stats.Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ov := &stats.Overview{
		CountsByStatus: make(map[string]int64),
		PerPlan:        make([]stats.PlanBreakdown, 0),
	}

	perPlan := make(map[string]*stats.PlanBreakdown)
	currency := ""

	for _, sub := range s.subscriptions {
		if !opts.IncludeDeleted && sub.IsDeleted() {
			continue
		}

		ov.TotalSubscriptions++
		ov.CountsByStatus[string(sub.Status)]++
		ov.VouchersIssued += int64(sub.TotalVouchers)
		ov.VouchersUsed += int64(sub.UsedVouchers)

		if currency == "" {
			currency = sub.AmountPaid.Currency
			ov.RevenueTotal = types.Zero(currency)
		}
		ov.RevenueTotal = ov.RevenueTotal.Add(sub.AmountPaid)

		key := sub.PlanID.String()
		pb, ok := perPlan[key]
		if !ok {
			pb = &stats.PlanBreakdown{
				PlanID:  sub.PlanID,
				Revenue: types.Zero(currency),
			}
			if p, exists := s.plans[key]; exists {
				pb.PlanName = p.Name
			}
			perPlan[key] = pb
		}
		pb.Subscriptions++
		pb.Revenue = pb.Revenue.Add(sub.AmountPaid)
		pb.VouchersIssued += int64(sub.TotalVouchers)
		pb.VouchersUsed += int64(sub.UsedVouchers)
	}

	if currency == "" {
		currency = "inr"
		ov.RevenueTotal = types.Zero(currency)
	}

	ov.RevenueAverage = types.Zero(currency)
	if ov.TotalSubscriptions > 0 {
		ov.RevenueAverage = ov.RevenueTotal.Divide(ov.TotalSubscriptions)
	}
	if ov.VouchersIssued > 0 {
		ov.RedemptionRate = float64(ov.VouchersUsed) / float64(ov.VouchersIssued)
	}

	keys := make([]string, 0, len(perPlan))
	for k := range perPlan {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ov.PerPlan = append(ov.PerPlan, *perPlan[k])
	}

	return ov, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions
func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
