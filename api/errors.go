package api

import (
	. "github.com/warpfork/go-errcat"
)

/*
	ErrorCategory is the category type for every error pkgrun returns.

	Errors are built with go-errcat (`Errorf(api.ErrNotFound, ...)`), and
	callers switch on `errcat.Category(err)`.  The categories group into
	kinds (resolution, execution, reporting) which decide how an error is
	handled by the orchestrator: see `Kind`.
*/
type ErrorCategory string

const (
	ErrUsage             ErrorCategory = "pkgrun-usage"               // Indicates the caller supplied bad arguments or config.
	ErrLocalCacheProblem ErrorCategory = "pkgrun-local-cache-problem" // Indicates workspace, reports, or cache dirs could not be used.

	ErrNotFound           ErrorCategory = "pkgrun-resolve-not-found"    // No version matched, or the store has no such artifact.
	ErrAmbiguousVersion   ErrorCategory = "pkgrun-resolve-ambiguous"    // More than one distinct version string ranked highest.
	ErrTransport          ErrorCategory = "pkgrun-resolve-transport"    // Talking to the store failed, or content failed integrity checks.
	ErrInvalidVersionSpec ErrorCategory = "pkgrun-resolve-invalid-spec" // The coordinate or version spec could not be parsed.

	ErrProcessLaunch    ErrorCategory = "pkgrun-exec-launch"       // The process could not be started.
	ErrTimeout          ErrorCategory = "pkgrun-exec-timeout"      // The deadline expired before the task finished.
	ErrNonZeroExit      ErrorCategory = "pkgrun-exec-nonzero-exit" // The process exited with a nonzero code.
	ErrNoImplementation ErrorCategory = "pkgrun-exec-no-impl"      // No plugin entry point satisfied the task contract.
	ErrIsolation        ErrorCategory = "pkgrun-exec-isolation"    // The isolated plugin context could not be set up.
	ErrTaskFailed       ErrorCategory = "pkgrun-exec-task-failed"  // The plugin reported failure (or panicked).

	ErrReportWrite ErrorCategory = "pkgrun-report-write" // One or more report files could not be written.
)

type ErrorKind string

const (
	KindUnknown    ErrorKind = ""
	KindResolution ErrorKind = "resolution"
	KindExecution  ErrorKind = "execution"
	KindReporting  ErrorKind = "reporting"
)

func (c ErrorCategory) Kind() ErrorKind {
	switch c {
	case ErrNotFound, ErrAmbiguousVersion, ErrTransport, ErrInvalidVersionSpec:
		return KindResolution
	case ErrProcessLaunch, ErrTimeout, ErrNonZeroExit, ErrNoImplementation, ErrIsolation, ErrTaskFailed:
		return KindExecution
	case ErrReportWrite:
		return KindReporting
	default:
		return KindUnknown
	}
}

// KindOf returns the kind of a categorized error, or KindUnknown.
func KindOf(err error) ErrorKind {
	cat, ok := Category(err).(ErrorCategory)
	if !ok {
		return KindUnknown
	}
	return cat.Kind()
}

/*
	Map the outcome of a run to a process exit code.

	Success (or skipped) is zero.  A failed run forwards the exit code of
	the package's own process when there is a real one; everything else
	(resolution failures, timeouts, plugin failures, no result at all) is 1.
*/
func ExitCodeFor(rs *RunSummary, err error) int {
	if rs == nil || rs.ExecutionResult == nil {
		if err == nil {
			return 0
		}
		return 1
	}
	res := rs.ExecutionResult
	switch res.Status {
	case StatusSuccess, StatusSkipped:
		return 0
	}
	if res.ExitCode != nil && *res.ExitCode > 0 {
		return *res.ExitCode
	}
	return 1
}
