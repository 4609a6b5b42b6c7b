/*
	Batch runs a list of jobs, each resolving and running one package,
	either one after another or across a bounded pool of goroutines.

	Jobs are always run in process mode, with the batch's runtime
	template prepended and the job's own argv appended after the
	artifact path.  Each job gets a private workspace directory under
	the batch workspace; the artifact is downloaded there and the
	process is run there, with its stdout and stderr logged beside it.

	A failed job only affects its siblings under sequential
	stop-on-failure, in which case jobs that never started simply
	don't appear in the results.
*/
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor/impl/process"
	"go.polydawn.net/pkgrun/executor/mixins"
	"go.polydawn.net/pkgrun/resolver"
	"go.polydawn.net/pkgrun/scheduler/dispatch"
	"go.polydawn.net/pkgrun/scheduler/group"
)

type Options struct {
	Parallel       bool
	MaxConcurrency int // Zero means 3.
	StopOnFailure  bool
	DryRun         bool
	Timeout        time.Duration // Per job.  Zero means api.DefaultTimeout.
	WorkspaceDir   string        // Empty means a fresh dir under os.TempDir.
	Runtime        []string

	Store api.ArtifactStore
	Cache *resolver.Cache // Optional.
	Log   log15.Logger
}

func (opts Options) withDefaults(batchID string) Options {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = group.DefaultSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = api.DefaultTimeout
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = filepath.Join(os.TempDir(), "pkgrun", "batch-"+batchID)
	}
	if abs, err := filepath.Abs(opts.WorkspaceDir); err == nil {
		opts.WorkspaceDir = abs
	}
	if opts.Log == nil {
		opts.Log = log15.New()
		opts.Log.SetHandler(log15.DiscardHandler())
	}
	return opts
}

/*
	Run every job and summarize.

	Run never returns an error: every problem a job can have is recorded
	in that job's result.  Use `BatchSummary.ExitCode` to decide the
	overall outcome.
*/
func Run(ctx context.Context, opts Options, jobs []api.JobConfig) api.BatchSummary {
	summary := api.BatchSummary{
		BatchID: uuid.NewString(),
		Start:   time.Now(),
	}
	opts = opts.withDefaults(summary.BatchID)
	log := opts.Log.New("BatchID", summary.BatchID)
	log.Info("starting batch", "jobs", len(jobs), "parallel", opts.Parallel, "dryRun", opts.DryRun, "workspace", opts.WorkspaceDir)

	r := &runner{
		opts:     opts,
		resolver: resolver.New(opts.Store, opts.Cache, log),
		log:      log,
	}
	results := make([]*api.JobResult, len(jobs))
	schedulerdispatch.Get(opts.Parallel, opts.MaxConcurrency).Schedule(ctx, len(jobs), func(ctx context.Context, i int) bool {
		res := r.runJob(ctx, i, jobs[i])
		results[i] = &res
		return res.Success || !opts.StopOnFailure
	})

	summary.Results = []api.JobResult{}
	for _, res := range results {
		if res == nil {
			continue
		}
		summary.Results = append(summary.Results, *res)
		if res.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	summary.Total = len(summary.Results)
	summary.End = time.Now()
	summary.DurationMs = summary.End.Sub(summary.Start).Milliseconds()
	log.Info("batch complete", "total", summary.Total, "successful", summary.Successful, "failed", summary.Failed, "durationMs", summary.DurationMs)
	return summary
}

type runner struct {
	opts     Options
	resolver *resolver.Resolver
	log      log15.Logger
}

func (r *runner) runJob(ctx context.Context, index int, job api.JobConfig) (res api.JobResult) {
	res = api.JobResult{
		Job:   job,
		Start: time.Now(),
	}
	log := r.log.New("job", index, "coordinate", job.Coordinate)
	defer func() {
		res.End = time.Now()
		res.DurationMs = res.End.Sub(res.Start).Milliseconds()
		if res.Success {
			log.Info("job succeeded", "durationMs", res.DurationMs)
		} else {
			log.Warn("job failed", "message", res.Message, "durationMs", res.DurationMs)
		}
	}()
	failed := func(err error) api.JobResult {
		res.Message = fmt.Sprintf("Execution failed: %s", err)
		return res
	}

	coord, err := api.ParseCoordinate(job.Coordinate)
	if err != nil {
		return failed(err)
	}
	spec, err := api.ParseVersionSpec(job.Version)
	if err != nil {
		return failed(err)
	}
	workspace := filepath.Join(r.opts.WorkspaceDir, "workspace", fmt.Sprintf("job-%d-%s", index, coord.Sanitized()))
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return failed(err)
	}

	resolved, err := r.resolver.Resolve(ctx, coord, spec, workspace)
	if err != nil {
		return failed(err)
	}
	res.ResolvedPath = resolved.Path
	argv := make([]string, 0, len(r.opts.Runtime)+1+len(job.Argv))
	argv = append(argv, r.opts.Runtime...)
	argv = append(argv, resolved.Path)
	argv = append(argv, job.Argv...)
	res.Invocation = strings.Join(argv, " ")

	if r.opts.DryRun {
		log.Info("dry run; would execute", "invocation", res.Invocation)
		res.Success = true
		res.ExitCode = api.IntPtr(0)
		res.Message = "Dry run successful"
		return res
	}

	stdout, err := os.Create(filepath.Join(workspace, mixins.StdoutLog))
	if err != nil {
		return failed(err)
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(workspace, mixins.StderrLog))
	if err != nil {
		return failed(err)
	}
	defer stderr.Close()

	out, err := process.Run(ctx, process.Spec{
		Argv:    argv,
		Dir:     workspace,
		Stdout:  stdout,
		Stderr:  stderr,
		Timeout: r.opts.Timeout,
	})
	if err != nil {
		return failed(err)
	}
	switch {
	case out.TimedOut:
		res.ExitCode = api.IntPtr(-1)
		res.Message = fmt.Sprintf("Job timed out after %s", r.opts.Timeout)
	case out.ExitCode == 0:
		res.Success = true
		res.ExitCode = api.IntPtr(0)
		res.Message = "Job completed successfully"
	default:
		res.ExitCode = api.IntPtr(out.ExitCode)
		res.Message = fmt.Sprintf("Job failed with exit code %d: %s", out.ExitCode,
			mixins.ExitMessage(filepath.Join(workspace, mixins.StderrLog), out.ExitCode))
	}
	return res
}
