package mixins

import (
	"time"

	"go.polydawn.net/pkgrun/api"
)

// Names of the files a run's output directory is expected to hold.
const (
	StdoutLog = "stdout.log"
	StderrLog = "stderr.log"
)

/*
	Files the report aggregator writes into the same directory.
	Output discovery ignores these so a rerun into an old reports dir
	doesn't list the previous run's reports as outputs.
*/
var ReportFiles = map[string]struct{}{
	"run-summary.json": {},
	"junit.xml":        {},
	"summary.html":     {},
	"results.json":     {},
}

/*
	Start a result in the 'running' state.

	Status starts out as FAILURE: whatever path the executor takes out,
	it's not a success unless something says so.
*/
func InitResult(start time.Time) api.ExecutionResult {
	return api.ExecutionResult{
		Status:      api.StatusFailure,
		StartTime:   start,
		OutputFiles: []string{},
		Metrics:     map[string]interface{}{},
		Errors:      []string{},
	}
}

// Fail finishes a result as FAILURE and records the error.
func Fail(res *api.ExecutionResult, end time.Time, err error) {
	res.Status = api.StatusFailure
	res.Message = err.Error()
	res.Errors = append(res.Errors, err.Error())
	res.Finish(end)
}

// TimedOut finishes a result as TIMEOUT.
func TimedOut(res *api.ExecutionResult, end time.Time, timeout time.Duration) {
	res.Status = api.StatusTimeout
	res.ExitCode = api.IntPtr(-1)
	res.Message = "Execution timed out after " + timeout.String()
	res.Errors = append(res.Errors, res.Message)
	res.Finish(end)
}
