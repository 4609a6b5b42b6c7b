/*
	The process executor runs an artifact as a child process.

	The child runs in its own process group with the output directory as
	its working directory; its stdout and stderr go to 'stdout.log' and
	'stderr.log' there.  On timeout the whole group is killed.
*/
package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inconshreveable/log15"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor"
	"go.polydawn.net/pkgrun/executor/mixins"
)

type Executor struct {
	template Template
	log      log15.Logger
}

var _ executor.Executor = &Executor{}

func NewExecutor(tmpl Template, log log15.Logger) *Executor {
	if log == nil {
		log = log15.New()
		log.SetHandler(log15.DiscardHandler())
	}
	return &Executor{tmpl, log}
}

func (e *Executor) Execute(
	ctx context.Context,
	artifact *api.ResolvedArtifact,
	cfg api.ExecutionConfig,
	outputDir string,
) (res api.ExecutionResult, err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	res = mixins.InitResult(time.Now())
	if artifact == nil {
		err = Errorf(api.ErrUsage, "no artifact to execute")
		mixins.Fail(&res, time.Now(), err)
		return res, err
	}
	log := e.log.New("artifact", artifact.Path)

	// Prepare the working dir and log files.
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		err = Errorf(api.ErrLocalCacheProblem, "cannot create output dir: %s", err)
		mixins.Fail(&res, time.Now(), err)
		return res, err
	}
	if e.template.Direct() {
		if err := os.Chmod(artifact.Path, 0755); err != nil {
			err = Errorf(api.ErrProcessLaunch, "cannot make artifact executable: %s", err)
			mixins.Fail(&res, time.Now(), err)
			return res, err
		}
	}
	stdout, err := os.Create(filepath.Join(outputDir, mixins.StdoutLog))
	if err != nil {
		err = Errorf(api.ErrLocalCacheProblem, "cannot create log file: %s", err)
		mixins.Fail(&res, time.Now(), err)
		return res, err
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(outputDir, mixins.StderrLog))
	if err != nil {
		err = Errorf(api.ErrLocalCacheProblem, "cannot create log file: %s", err)
		mixins.Fail(&res, time.Now(), err)
		return res, err
	}
	defer stderr.Close()

	// Go.
	argv := e.template.Render(artifact.Path, cfg)
	timeout := cfg.EffectiveTimeout()
	res.Metrics["command"] = strings.Join(argv, " ")
	log.Info("launching process", "argv", argv, "timeout", timeout)
	out, err := Run(ctx, Spec{
		Argv:    argv,
		Dir:     outputDir,
		Stdout:  stdout,
		Stderr:  stderr,
		Timeout: timeout,
	})
	stdout.Close()
	stderr.Close()
	if !out.Start.IsZero() {
		res.StartTime = out.Start
	}
	if err != nil {
		log.Error("process failed to run", "err", err)
		mixins.Fail(&res, time.Now(), err)
		res.OutputFiles = mixins.DiscoverOutputs(outputDir)
		return res, err
	}

	// Map the outcome onto a status.
	switch {
	case out.TimedOut:
		mixins.TimedOut(&res, out.End, timeout)
		if errors.Is(ctx.Err(), context.Canceled) {
			res.Message = "Execution canceled"
			res.Errors[len(res.Errors)-1] = res.Message
		}
	case out.ExitCode == 0:
		res.Status = api.StatusSuccess
		res.ExitCode = api.IntPtr(0)
		res.Message = "Process completed successfully"
		res.Finish(out.End)
	default:
		res.Status = api.StatusFailure
		res.ExitCode = api.IntPtr(out.ExitCode)
		res.Message = mixins.ExitMessage(stderr.Name(), out.ExitCode)
		res.Errors = append(res.Errors, res.Message)
		res.Finish(out.End)
	}
	res.OutputFiles = mixins.DiscoverOutputs(outputDir)
	log.Info("process finished", "status", res.Status, "exitCode", out.ExitCode, "durationMs", res.DurationMs)
	return res, nil
}
