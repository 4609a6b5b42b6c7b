/*
	Package sdk is what plugin-mode packages import.

	A plugin package is a tar of Go sources (package main, no main func)
	plus a 'pkgrun.yaml' manifest naming its entry points.  Each entry
	point has the shape of `Task`:

		import "go.polydawn.net/pkgrun/plugin/sdk"

		func Execute(args map[string]string, outputDir string) (sdk.Result, error) {
			return sdk.Success("Hello, " + args["name"] + "!"), nil
		}

	The sources are interpreted, not compiled, and see only the standard
	library and this package.
*/
package sdk

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusSkipped Status = "SKIPPED"
)

/*
	Result is what a task hands back.

	OutputFiles may be relative to the output directory the task was given.
	A zero Status means SUCCESS if no error was returned alongside.
*/
type Result struct {
	Status      Status
	Message     string
	OutputFiles []string
	Metrics     map[string]interface{}
	Errors      []string
}

// Task is the signature every entry point must have.
type Task func(args map[string]string, outputDir string) (Result, error)

func Success(message string, outputFiles ...string) Result {
	return Result{Status: StatusSuccess, Message: message, OutputFiles: outputFiles}
}

func Failure(message string, errs ...string) Result {
	return Result{Status: StatusFailure, Message: message, Errors: errs}
}

func Skipped(message string) Result {
	return Result{Status: StatusSkipped, Message: message}
}
