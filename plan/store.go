package plan

import (
	"context"

	"github.com/mealvine/mealpass/id"
)

type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, planID id.PlanID) (*Plan, error)
	// FindActive returns the active plan matching the (name, duration, scope)
	// triple, or a not-found error. Used to enforce catalog uniqueness.
	FindActive(ctx context.Context, name string, duration Duration, scope Scope) (*Plan, error)
	List(ctx context.Context, opts ListOpts) ([]*Plan, error)
	Update(ctx context.Context, p *Plan) error
	SetStatus(ctx context.Context, planID id.PlanID, status Status) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
