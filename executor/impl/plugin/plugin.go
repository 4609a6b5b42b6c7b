/*
	The plugin executor loads an artifact's Go sources into an interpreter
	inside this process and calls its entry point.

	Each run gets its own isolated context (see isolatedContext).
	The entry point runs on its own goroutine and is raced against the
	deadline.  An interpreted call can't be interrupted, so a plugin that
	overruns is reported as TIMEOUT and then abandoned: its goroutine may
	keep running until it returns on its own.  Plugins that need hard
	kills belong in process mode.
*/
package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/inconshreveable/log15"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor"
	"go.polydawn.net/pkgrun/executor/mixins"
	"go.polydawn.net/pkgrun/plugin/sdk"
)

type Executor struct {
	log log15.Logger
}

var _ executor.Executor = &Executor{}

func NewExecutor(log log15.Logger) *Executor {
	if log == nil {
		log = log15.New()
		log.SetHandler(log15.DiscardHandler())
	}
	return &Executor{log}
}

type called struct {
	result   sdk.Result
	err      error
	panicked interface{}
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

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		err = Errorf(api.ErrLocalCacheProblem, "cannot create output dir: %s", err)
		mixins.Fail(&res, time.Now(), err)
		return res, err
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

	// Acquire the isolated context.  Released on every path from here.
	ic, err := acquire(artifact.Path, filepath.Dir(artifact.Path), stdout, stderr)
	if err != nil {
		log.Error("plugin failed to load", "err", err)
		mixins.Fail(&res, time.Now(), err)
		res.OutputFiles = mixins.DiscoverOutputs(outputDir)
		return res, err
	}
	defer ic.release()
	name, task, err := ic.entryPoint()
	if err != nil {
		log.Error("plugin has no entry point", "tried", ic.manifest.EntryPoints)
		mixins.Fail(&res, time.Now(), err)
		res.OutputFiles = mixins.DiscoverOutputs(outputDir)
		return res, err
	}
	res.Metrics["entryPoint"] = name

	// Call it, racing the deadline.
	args := make(map[string]string, len(cfg.Arguments))
	for k, v := range cfg.Arguments {
		args[k] = v
	}
	timeout := cfg.EffectiveTimeout()
	done := make(chan called, 1)
	log.Info("calling plugin", "plugin", ic.manifest.Name, "entryPoint", name, "timeout", timeout)
	res.StartTime = time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- called{panicked: r}
			}
		}()
		r, err := task(args, outputDir)
		done <- called{result: r, err: err}
	}()

	var declared []string
	select {
	case c := <-done:
		declared = applyResult(&res, c, outputDir)
		res.Finish(time.Now())
	case <-timer.C:
		mixins.TimedOut(&res, time.Now(), timeout)
		log.Warn("plugin overran its deadline; abandoning it", "timeout", timeout)
	case <-ctx.Done():
		mixins.TimedOut(&res, time.Now(), timeout)
		if errors.Is(ctx.Err(), context.Canceled) {
			res.Message = "Execution canceled"
			res.Errors[len(res.Errors)-1] = res.Message
		}
		log.Warn("plugin run canceled; abandoning it", "reason", ctx.Err())
	}
	res.OutputFiles = mixins.AppendOutputs(mixins.DiscoverOutputs(outputDir), declared...)
	log.Info("plugin finished", "status", res.Status, "durationMs", res.DurationMs)
	return res, nil
}

/*
	Map what the plugin handed back onto the result.
	Returns the output files it declared, as paths under outputDir.
*/
func applyResult(res *api.ExecutionResult, c called, outputDir string) []string {
	if c.panicked != nil {
		res.Status = api.StatusFailure
		res.Message = fmt.Sprintf("Plugin panicked: %v", c.panicked)
		res.Errors = append(res.Errors, res.Message)
		return nil
	}
	r := c.result
	for k, v := range r.Metrics {
		res.Metrics[k] = v
	}
	res.Errors = append(res.Errors, r.Errors...)
	switch {
	case c.err != nil:
		res.Status = api.StatusFailure
		res.Message = c.err.Error()
		res.Errors = append(res.Errors, c.err.Error())
	case r.Status == "" || r.Status == sdk.StatusSuccess:
		res.Status = api.StatusSuccess
		res.Message = orDefault(r.Message, "Plugin completed successfully")
	case r.Status == sdk.StatusSkipped:
		res.Status = api.StatusSkipped
		res.Message = orDefault(r.Message, "Plugin skipped")
	case r.Status == sdk.StatusFailure:
		res.Status = api.StatusFailure
		res.Message = orDefault(r.Message, "Plugin reported failure")
	default:
		res.Status = api.StatusFailure
		res.Message = fmt.Sprintf("Plugin returned unknown status %q", r.Status)
		res.Errors = append(res.Errors, res.Message)
	}
	declared := make([]string, 0, len(r.OutputFiles))
	for _, p := range r.OutputFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(outputDir, p)
		}
		declared = append(declared, filepath.Clean(p))
	}
	return declared
}

func orDefault(s, dflt string) string {
	if s == "" {
		return dflt
	}
	return s
}
