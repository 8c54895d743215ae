package redemption

import (
	"context"
	"time"

	"github.com/mealvine/mealpass/id"
)

type Store interface {
	RecordBatch(ctx context.Context, events []*Event) error
	Query(ctx context.Context, opts QueryOpts) ([]*Event, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type QueryOpts struct {
	SubscriptionID id.SubscriptionID
	CustomerID     id.CustomerID
	Start          time.Time
	End            time.Time
	Limit          int
	Offset         int
}
