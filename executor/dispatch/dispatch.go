package executordispatch

import (
	"github.com/inconshreveable/log15"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor"
	"go.polydawn.net/pkgrun/executor/impl/plugin"
	"go.polydawn.net/pkgrun/executor/impl/process"
)

type Config struct {
	Runtime []string // Process mode invocation template; see process.Template.
	Log     log15.Logger
}

/*
	Get the executor for a mode.  An empty mode means process mode.
	Unknown modes are `ErrUsage`.
*/
func Get(mode api.ExecutionMode, cfg Config) (executor.Executor, error) {
	switch mode {
	case api.ModeProcess, "":
		return process.NewExecutor(process.Template{Runtime: cfg.Runtime}, cfg.Log), nil
	case api.ModePlugin:
		return plugin.NewExecutor(cfg.Log), nil
	default:
		return nil, Errorf(api.ErrUsage, "no such execution mode %q", mode)
	}
}
