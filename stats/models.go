// Package stats defines the read-only aggregate views over the subscription
// ledger. All values are projections computed store-side at read time;
// nothing here is ever written back.
package stats

import (
	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/types"
)

// Overview is a point-in-time rollup of the whole ledger. Counts reflect
// stored statuses as-is; a lapsed record the sweep has not yet visited still
// counts as active.
type Overview struct {
	TotalSubscriptions int64            `json:"total_subscriptions"`
	CountsByStatus     map[string]int64 `json:"counts_by_status"`

	RevenueTotal   types.Money `json:"revenue_total"`
	RevenueAverage types.Money `json:"revenue_average"`

	VouchersIssued int64 `json:"vouchers_issued"`
	VouchersUsed   int64 `json:"vouchers_used"`
	// RedemptionRate is VouchersUsed / VouchersIssued, 0 when nothing issued.
	RedemptionRate float64 `json:"redemption_rate"`

	PerPlan []PlanBreakdown `json:"per_plan"`
}

// PlanBreakdown is the per-plan slice of the overview.
type PlanBreakdown struct {
	PlanID         id.PlanID   `json:"plan_id"`
	PlanName       string      `json:"plan_name"`
	Subscriptions  int64       `json:"subscriptions"`
	Revenue        types.Money `json:"revenue"`
	VouchersIssued int64       `json:"vouchers_issued"`
	VouchersUsed   int64       `json:"vouchers_used"`
}

// Opts filters the overview computation.
type Opts struct {
	// IncludeDeleted counts soft-deleted subscriptions too.
	IncludeDeleted bool
}
