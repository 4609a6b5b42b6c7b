package main

import (
	"context"
	"path/filepath"

	"github.com/inconshreveable/log15"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/config"
	"go.polydawn.net/pkgrun/engine"
)

func RunCmd(
	ctx context.Context,
	cfg config.Config,
	args runArgs,
	printer printer,
	log log15.Logger,
) (exitCode int, err error) {
	store, err := cfg.OpenStore(log)
	if err != nil {
		return 1, err
	}
	cache, err := cfg.OpenCache(log)
	if err != nil {
		return 1, err
	}
	timeout := args.Timeout
	if timeout == 0 {
		timeout = cfg.Timeout
	}
	reportsDir := args.ReportsDir
	if reportsDir != "" {
		reportsDir, err = filepath.Abs(reportsDir)
		if err != nil {
			panic(err)
		}
	}

	eng := engine.New(engine.Config{
		Store:   store,
		Cache:   cache,
		Runtime: cfg.Runtime,
		Log:     log,
	})
	summary, err := eng.Execute(ctx, api.ExecutionConfig{
		Coordinate:       args.Coordinate,
		Version:          args.Version,
		Mode:             api.ExecutionMode(args.Mode),
		Arguments:        args.Arguments,
		ReportsDir:       reportsDir,
		WorkspaceDir:     cfg.Workspace,
		Timeout:          timeout,
		ExtraRuntimeArgs: args.ExtraArgs,
	})

	// The summary is always there; print it even if things went badly.
	printer.printRun(summary)
	return api.ExitCodeFor(summary, err), err
}
