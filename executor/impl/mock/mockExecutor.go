package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor"
	"go.polydawn.net/pkgrun/executor/mixins"
)

const OutputFile = "mock-output.txt"

/*
	The mock executor doesn't run anything.

	It reports whatever status it's configured with, and fabricates one
	output file whose content is determined by the artifact digest and
	the arguments, so the rest of the pipeline has something to look at.
*/
type Executor struct {
	Status  api.Status // Zero means SUCCESS.
	Message string
	Err     error // If set, returned alongside the result.
}

var _ executor.Executor = Executor{}

func (cfg Executor) Execute(
	ctx context.Context,
	artifact *api.ResolvedArtifact,
	execCfg api.ExecutionConfig,
	outputDir string,
) (api.ExecutionResult, error) {
	res := mixins.InitResult(time.Now())
	if artifact == nil {
		err := Errorf(api.ErrUsage, "the mock executor still needs an artifact")
		mixins.Fail(&res, time.Now(), err)
		return res, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		err := Errorf(api.ErrLocalCacheProblem, "cannot create output dir: %s", err)
		mixins.Fail(&res, time.Now(), err)
		return res, err
	}

	// Fabricate output.
	keys := make([]string, 0, len(execCfg.Arguments))
	for k := range execCfg.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var body strings.Builder
	fmt.Fprintf(&body, "%s\n", artifact.Digest)
	for _, k := range keys {
		fmt.Fprintf(&body, "%s=%s\n", k, execCfg.Arguments[k])
	}
	outPath := filepath.Join(outputDir, OutputFile)
	if err := os.WriteFile(outPath, []byte(body.String()), 0644); err != nil {
		err := Errorf(api.ErrLocalCacheProblem, "cannot write mock output: %s", err)
		mixins.Fail(&res, time.Now(), err)
		return res, err
	}

	res.Status = cfg.Status
	if res.Status == "" {
		res.Status = api.StatusSuccess
	}
	res.Message = cfg.Message
	if cfg.Err != nil {
		res.Errors = append(res.Errors, cfg.Err.Error())
	}
	res.Metrics["mock"] = true
	res.OutputFiles = []string{outPath}
	res.Finish(time.Now())
	return res, cfg.Err
}
