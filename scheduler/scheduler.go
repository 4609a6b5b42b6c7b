package scheduler

import (
	"context"
)

/*
	Schedulers decide how a batch of jobs is spread across goroutines.

	A scheduler is handed a count and a function, and calls the function
	once per index.  Results are the function's business: it should store
	them by index, so completion order never matters.

	Schedulers never cancel jobs that are already running.  Whether a
	job's failure stops jobs that haven't started yet is up to the
	scheduler; see each implementation.
*/
type Scheduler interface {
	/*
		Call `job` for each index in [0, n), and return once every
		call that was started has returned.

		`job` returns false to ask that no further jobs be started.
	*/
	Schedule(ctx context.Context, n int, job func(ctx context.Context, index int) (keepGoing bool))
}
