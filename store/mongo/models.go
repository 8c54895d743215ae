package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
	"github.com/mealvine/mealpass/redemption"
	"github.com/mealvine/mealpass/subscription"
	"github.com/mealvine/mealpass/types"
)

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:mealpass_plans"`

	ID                string     `grove:"id,pk"               bson:"_id"`
	Name              string     `grove:"name"                bson:"name"`
	Description       string     `grove:"description"         bson:"description"`
	DurationDays      int        `grove:"duration_days"       bson:"duration_days"`
	Scope             string     `grove:"scope"               bson:"scope"`
	VoucherCount      int        `grove:"voucher_count"       bson:"voucher_count"`
	PriceCents        int64      `grove:"price_cents"         bson:"price_cents"`
	PriceCurrency     string     `grove:"price_currency"      bson:"price_currency"`
	CompareAtCents    *int64     `grove:"compare_at_cents"    bson:"compare_at_cents,omitempty"`
	CompareAtCurrency *string    `grove:"compare_at_currency" bson:"compare_at_currency,omitempty"`
	Status            string     `grove:"status"              bson:"status"`
	CreatedAt         time.Time  `grove:"created_at"          bson:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"          bson:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	m := &planModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		Description:   p.Description,
		DurationDays:  p.Duration.Days(),
		Scope:         string(p.Scope),
		VoucherCount:  p.VoucherCount,
		PriceCents:    p.Price.Amount,
		PriceCurrency: p.Price.Currency,
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.CompareAtPrice != nil {
		m.CompareAtCents = &p.CompareAtPrice.Amount
		m.CompareAtCurrency = &p.CompareAtPrice.Currency
	}
	return m
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}

	var compareAt *types.Money
	if m.CompareAtCents != nil && m.CompareAtCurrency != nil {
		compareAt = &types.Money{Amount: *m.CompareAtCents, Currency: *m.CompareAtCurrency}
	}

	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             planID,
		Name:           m.Name,
		Description:    m.Description,
		Duration:       plan.Duration(m.DurationDays),
		Scope:          plan.Scope(m.Scope),
		VoucherCount:   m.VoucherCount,
		Price:          types.Money{Amount: m.PriceCents, Currency: m.PriceCurrency},
		CompareAtPrice: compareAt,
		Status:         plan.Status(m.Status),
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:mealpass_subscriptions"`

	ID                 string     `grove:"id,pk"                bson:"_id"`
	CustomerID         string     `grove:"customer_id"          bson:"customer_id"`
	PlanID             string     `grove:"plan_id"              bson:"plan_id"`
	Scope              string     `grove:"scope"                bson:"scope"`
	DurationDays       int        `grove:"duration_days"        bson:"duration_days"`
	TotalVouchers      int        `grove:"total_vouchers"       bson:"total_vouchers"`
	UsedVouchers       int        `grove:"used_vouchers"        bson:"used_vouchers"`
	AmountPaidCents    int64      `grove:"amount_paid_cents"    bson:"amount_paid_cents"`
	AmountPaidCurrency string     `grove:"amount_paid_currency" bson:"amount_paid_currency"`
	PurchasedAt        time.Time  `grove:"purchased_at"         bson:"purchased_at"`
	ExpiresAt          time.Time  `grove:"expires_at"           bson:"expires_at"`
	Status             string     `grove:"status"               bson:"status"`
	DeletedAt          *time.Time `grove:"deleted_at"           bson:"deleted_at,omitempty"`
	CreatedAt          time.Time  `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"           bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:                 s.ID.String(),
		CustomerID:         s.CustomerID.String(),
		PlanID:             s.PlanID.String(),
		Scope:              string(s.Scope),
		DurationDays:       s.DurationDays,
		TotalVouchers:      s.TotalVouchers,
		UsedVouchers:       s.UsedVouchers,
		AmountPaidCents:    s.AmountPaid.Amount,
		AmountPaidCurrency: s.AmountPaid.Currency,
		PurchasedAt:        s.PurchasedAt,
		ExpiresAt:          s.ExpiresAt,
		Status:             string(s.Status),
		DeletedAt:          s.DeletedAt,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            subID,
		CustomerID:    custID,
		PlanID:        planID,
		Scope:         plan.Scope(m.Scope),
		DurationDays:  m.DurationDays,
		TotalVouchers: m.TotalVouchers,
		UsedVouchers:  m.UsedVouchers,
		AmountPaid:    types.Money{Amount: m.AmountPaidCents, Currency: m.AmountPaidCurrency},
		PurchasedAt:   m.PurchasedAt,
		ExpiresAt:     m.ExpiresAt,
		Status:        subscription.Status(m.Status),
		DeletedAt:     m.DeletedAt,
	}, nil
}

// ==================== Redemption Event models ====================

type redemptionEventModel struct {
	grove.BaseModel `grove:"table:mealpass_redemptions"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	SubscriptionID string    `grove:"subscription_id" bson:"subscription_id"`
	CustomerID     string    `grove:"customer_id"     bson:"customer_id"`
	PlanID         string    `grove:"plan_id"         bson:"plan_id"`
	RemainingAfter int       `grove:"remaining_after" bson:"remaining_after"`
	Timestamp      time.Time `grove:"timestamp"       bson:"timestamp"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
}

func toRedemptionEventModel(e *redemption.Event) *redemptionEventModel {
	return &redemptionEventModel{
		ID:             e.ID.String(),
		SubscriptionID: e.SubscriptionID.String(),
		CustomerID:     e.CustomerID.String(),
		PlanID:         e.PlanID.String(),
		RemainingAfter: e.RemainingAfter,
		Timestamp:      e.Timestamp,
		CreatedAt:      time.Now().UTC(),
	}
}

func fromRedemptionEventModel(m *redemptionEventModel) (*redemption.Event, error) {
	evtID, err := id.ParseRedemptionID(m.ID)
	if err != nil {
		return nil, err
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}

	return &redemption.Event{
		ID:             evtID,
		SubscriptionID: subID,
		CustomerID:     custID,
		PlanID:         planID,
		RemainingAfter: m.RemainingAfter,
		Timestamp:      m.Timestamp,
	}, nil
}
