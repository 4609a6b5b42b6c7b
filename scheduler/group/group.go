package group

import (
	"context"

	"golang.org/x/sync/errgroup"

	"go.polydawn.net/pkgrun/scheduler"
)

// interface assertion
var _ scheduler.Scheduler = &Scheduler{}

const DefaultSize = 3

/*
	Runs jobs on a fixed-size pool of goroutines.

	Every job is run, whatever happens to its siblings: requests to stop
	are ignored, and a cancelled context is left for the jobs themselves
	to notice (so that each still gets to record a result).
*/
type Scheduler struct {
	Size int // Zero means DefaultSize.
}

func (s *Scheduler) Schedule(ctx context.Context, n int, job func(ctx context.Context, index int) bool) {
	size := s.Size
	if size <= 0 {
		size = DefaultSize
	}
	var g errgroup.Group
	g.SetLimit(size)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			job(ctx, i)
			return nil
		})
	}
	g.Wait()
}
