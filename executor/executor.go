package executor

import (
	"context"

	"go.polydawn.net/pkgrun/api"
)

/*
	Executor runs one resolved artifact and reports what happened.

	Implementations always return a result with exactly one status set,
	even when they also return an error: the error says *why* things went
	badly (and is categorized), the result says *what* happened.
	A run that merely fails (nonzero exit, plugin returning failure, timeout)
	is not an error from the executor's point of view; it's a result.

	`outputDir` is where the run may leave files; executors list everything
	they find there (and anything the task declares) in `OutputFiles`.
*/
type Executor interface {
	Execute(
		ctx context.Context,
		artifact *api.ResolvedArtifact,
		cfg api.ExecutionConfig,
		outputDir string,
	) (api.ExecutionResult, error)
}

// ExecuteFunc adapts a plain function to the Executor interface.
type ExecuteFunc func(ctx context.Context, artifact *api.ResolvedArtifact, cfg api.ExecutionConfig, outputDir string) (api.ExecutionResult, error)

func (fn ExecuteFunc) Execute(ctx context.Context, artifact *api.ResolvedArtifact, cfg api.ExecutionConfig, outputDir string) (api.ExecutionResult, error) {
	return fn(ctx, artifact, cfg, outputDir)
}
