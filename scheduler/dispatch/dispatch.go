package schedulerdispatch

import (
	"go.polydawn.net/pkgrun/scheduler"
	"go.polydawn.net/pkgrun/scheduler/group"
	"go.polydawn.net/pkgrun/scheduler/linear"
)

// Get a parallel scheduler of the given size, or a linear one.
func Get(parallel bool, maxConcurrency int) scheduler.Scheduler {
	if parallel {
		return &group.Scheduler{Size: maxConcurrency}
	}
	return &linear.Scheduler{}
}
