package main

import (
	"context"
	"os"

	"github.com/inconshreveable/log15"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/batch"
	"go.polydawn.net/pkgrun/config"
)

/*
	Run a batch file.

	Settings come from the config, then the batch file, then flags,
	each overriding the last where set.
*/
func BatchCmd(
	ctx context.Context,
	cfg config.Config,
	args batchArgs,
	printer printer,
	log log15.Logger,
) (exitCode int, err error) {
	bf, err := config.LoadBatchFile(args.BatchPath)
	if err != nil {
		return 1, err
	}
	store, err := cfg.OpenStore(log)
	if err != nil {
		return 1, err
	}
	cache, err := cfg.OpenCache(log)
	if err != nil {
		return 1, err
	}

	opts := batch.Options{
		MaxConcurrency: cfg.Batch.MaxConcurrency,
		StopOnFailure:  cfg.Batch.StopOnFailure,
		Timeout:        cfg.Timeout,
		Runtime:        cfg.Runtime,
		Store:          store,
		Cache:          cache,
		Log:            log,
	}
	if bf.Parallel != nil {
		opts.Parallel = *bf.Parallel
	}
	if bf.MaxConcurrency != nil {
		opts.MaxConcurrency = *bf.MaxConcurrency
	}
	if bf.StopOnFailure != nil {
		opts.StopOnFailure = *bf.StopOnFailure
	}
	if bf.DryRun != nil {
		opts.DryRun = *bf.DryRun
	}
	if bf.Timeout != nil {
		opts.Timeout = *bf.Timeout
	}
	opts.Parallel = opts.Parallel || args.Parallel
	opts.StopOnFailure = opts.StopOnFailure || args.StopOnFailure
	opts.DryRun = opts.DryRun || args.DryRun
	if args.MaxConcurrency > 0 {
		opts.MaxConcurrency = args.MaxConcurrency
	}
	if args.Timeout > 0 {
		opts.Timeout = args.Timeout
	}
	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return 1, Errorf(api.ErrLocalCacheProblem, "cannot create workspace: %s", err)
	}
	opts.WorkspaceDir, err = os.MkdirTemp(cfg.Workspace, "batch-")
	if err != nil {
		return 1, Errorf(api.ErrLocalCacheProblem, "cannot create batch workspace: %s", err)
	}
	log.Info("batch workspace", "dir", opts.WorkspaceDir, "jobs", len(bf.Jobs))

	summary := batch.Run(ctx, opts, bf.Jobs)
	printer.printBatch(summary)
	return summary.ExitCode(), nil
}
