package linear

import (
	"context"

	"go.polydawn.net/pkgrun/scheduler"
)

// interface assertion
var _ scheduler.Scheduler = &Scheduler{}

/*
	Runs jobs one at a time, in index order.

	Stops starting new jobs when one asks it to, or when the context
	is done.
*/
type Scheduler struct{}

func (s *Scheduler) Schedule(ctx context.Context, n int, job func(ctx context.Context, index int) bool) {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		if !job(ctx, i) {
			return
		}
	}
}
