/*
	The engine runs one package end to end: resolve it, execute it,
	write its reports.

	Every call gets a fresh execution ID and its own workspace directory
	(`<workspaceDir>/<executionID>`).  Whatever happens, a RunSummary comes
	back, and reports are written for it if at all possible.
*/
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor"
	"go.polydawn.net/pkgrun/executor/dispatch"
	"go.polydawn.net/pkgrun/executor/mixins"
	"go.polydawn.net/pkgrun/report"
	"go.polydawn.net/pkgrun/resolver"
)

type Config struct {
	Store   api.ArtifactStore
	Cache   *resolver.Cache // Optional.
	Runtime []string        // Process mode invocation template.
	Log     log15.Logger
}

type Engine struct {
	resolver  *resolver.Resolver
	executors func(api.ExecutionMode) (executor.Executor, error)
	log       log15.Logger
}

func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = log15.New()
		log.SetHandler(log15.DiscardHandler())
	}
	return &Engine{
		resolver: resolver.New(cfg.Store, cfg.Cache, log),
		executors: func(mode api.ExecutionMode) (executor.Executor, error) {
			return executordispatch.Get(mode, executordispatch.Config{
				Runtime: cfg.Runtime,
				Log:     log,
			})
		},
		log: log,
	}
}

/*
	Execute runs one package.

	The returned summary is never nil.  The error is nil only if the run
	succeeded (or was skipped); otherwise it's categorized:

		- a bad coordinate or version spec, before anything touches disk;
		- a resolution error (`ErrNotFound`, `ErrAmbiguousVersion`, `ErrTransport`);
		- an executor error (`ErrProcessLaunch`, `ErrNoImplementation`, `ErrIsolation`, ...);
		- or, for runs that happened but didn't succeed,
		  `ErrTimeout`, `ErrNonZeroExit`, or `ErrTaskFailed`.

	Report writing problems are logged and never returned.
*/
func (e *Engine) Execute(ctx context.Context, cfg api.ExecutionConfig) (summary *api.RunSummary, err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))

	summary = &api.RunSummary{
		ExecutionID: uuid.NewString(),
		Timestamp:   time.Now(),
		OutputFiles: []string{},
	}
	log := e.log.New("ExecutionID", summary.ExecutionID)
	cfg = withDefaults(cfg, summary.ExecutionID)
	summary.Config = cfg
	log.Info("starting execution", "coordinate", cfg.Coordinate, "version", cfg.Version, "mode", cfg.Mode)

	// Check the request before touching the filesystem at all.
	coord, err := api.ParseCoordinate(cfg.Coordinate)
	if err != nil {
		return e.fail(log, summary, nil, err)
	}
	spec, err := api.ParseVersionSpec(cfg.Version)
	if err != nil {
		return e.fail(log, summary, nil, err)
	}
	exe, err := e.executors(cfg.Mode)
	if err != nil {
		return e.fail(log, summary, nil, err)
	}

	// Make dirs.
	if err := os.MkdirAll(cfg.ReportsDir, 0755); err != nil {
		return e.fail(log, summary, nil, Errorf(api.ErrLocalCacheProblem, "cannot create reports dir: %s", err))
	}
	workspace := filepath.Join(cfg.WorkspaceDir, summary.ExecutionID)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return e.fail(log, summary, nil, Errorf(api.ErrLocalCacheProblem, "cannot create workspace: %s", err))
	}

	// Resolve.
	log.Info("resolving artifact", "spec", spec.String())
	resolved, err := e.resolver.Resolve(ctx, coord, spec, workspace)
	if err != nil {
		return e.fail(log, summary, nil, err)
	}
	summary.ResolvedArtifact = resolved

	// Execute.
	log.Info("executing artifact", "version", resolved.Version, "digest", resolved.Digest)
	result, err := exe.Execute(ctx, resolved, cfg, cfg.ReportsDir)
	if err != nil {
		return e.fail(log, summary, &result, err)
	}

	// Report.
	e.finish(log, summary, &result)
	return summary, statusError(result)
}

/*
	Fill in the result, the summary line, and write reports.
	Report failures are logged and go no further.
*/
func (e *Engine) finish(log log15.Logger, summary *api.RunSummary, result *api.ExecutionResult) {
	summary.ExecutionResult = result
	if result.OutputFiles != nil {
		summary.OutputFiles = result.OutputFiles
	}
	summary.Summary = fmt.Sprintf("Execution %s completed with status %s in %d ms",
		summary.ExecutionID, result.Status, result.DurationMs)
	if err := report.Generate(log, summary, result, summary.Config.ReportsDir); err != nil {
		log.Warn("reports incomplete", "err", err)
	}
	log.Info("execution finished", "status", result.Status, "durationMs", result.DurationMs)
}

/*
	Record a run that couldn't complete.  If the executor produced a
	result, that's kept; otherwise a FAILURE result is made up to cover
	the time since the run started.  The original error is returned.
*/
func (e *Engine) fail(log log15.Logger, summary *api.RunSummary, result *api.ExecutionResult, cause error) (*api.RunSummary, error) {
	log.Error("execution failed", "err", cause)
	if result == nil || !result.Status.Valid() {
		r := mixins.InitResult(summary.Timestamp)
		mixins.Fail(&r, time.Now(), cause)
		r.Message = "Execution failed: " + cause.Error()
		result = &r
	}
	e.finish(log, summary, result)
	summary.Summary = "Execution failed: " + cause.Error()
	return summary, cause
}

// The error for a run that happened but didn't succeed.
func statusError(result api.ExecutionResult) error {
	switch {
	case result.Status.Succeeded():
		return nil
	case result.Status == api.StatusTimeout:
		return Errorf(api.ErrTimeout, "%s", result.Message)
	case result.ExitCode != nil && *result.ExitCode != 0:
		return Errorf(api.ErrNonZeroExit, "process exited with code %d: %s", *result.ExitCode, result.Message)
	default:
		return Errorf(api.ErrTaskFailed, "%s", result.Message)
	}
}

// Relative paths are made absolute against the cwd; if even that fails,
// the path is left alone and the resolver will complain about it.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

/*
	Fill in unset config: process mode, the default timeout, a workspace
	under the system temp dir, and a reports dir per execution under the
	workspace (but outside the run's own workspace dir, so that runs which
	fail before it's made still get reports).
*/
func withDefaults(cfg api.ExecutionConfig, executionID string) api.ExecutionConfig {
	cfg.Mode = cfg.EffectiveMode()
	cfg.Timeout = cfg.EffectiveTimeout()
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = filepath.Join(os.TempDir(), "pkgrun", "workspace")
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = filepath.Join(cfg.WorkspaceDir, "reports", executionID)
	}
	// Processes run with the reports dir as their cwd, so nothing
	//  handed to them may be relative.
	cfg.WorkspaceDir = absPath(cfg.WorkspaceDir)
	cfg.ReportsDir = absPath(cfg.ReportsDir)
	if cfg.Arguments == nil {
		cfg.Arguments = map[string]string{}
	}
	return cfg
}
