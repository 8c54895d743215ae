// Package redemption is the append-only log of voucher redemptions. The
// subscription counters remain the store of record; this log exists for
// audit and reporting only.
package redemption

import (
	"time"

	"github.com/mealvine/mealpass/id"
)

// Event records a single successful voucher redemption.
type Event struct {
	ID             id.RedemptionID   `json:"id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	CustomerID     id.CustomerID     `json:"customer_id"`
	PlanID         id.PlanID         `json:"plan_id"`
	// RemainingAfter is the subscription's remaining voucher count
	// immediately after this redemption.
	RemainingAfter int       `json:"remaining_after"`
	Timestamp      time.Time `json:"timestamp"`
}
