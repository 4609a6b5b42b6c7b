package process

import (
	"sort"

	"go.polydawn.net/pkgrun/api"
)

/*
	Template says how to turn an artifact into a command line.

	The rendered argv is:

		Runtime... ExtraRuntimeArgs... <artifact path> --k1 v1 --k2 v2 ...

	with argument keys sorted so the same config always renders the same argv.
	An empty Runtime means the artifact is itself executable.
*/
type Template struct {
	Runtime []string
}

func (t Template) Render(artifactPath string, cfg api.ExecutionConfig) []string {
	argv := make([]string, 0, len(t.Runtime)+len(cfg.ExtraRuntimeArgs)+1+2*len(cfg.Arguments))
	argv = append(argv, t.Runtime...)
	argv = append(argv, cfg.ExtraRuntimeArgs...)
	argv = append(argv, artifactPath)
	keys := make([]string, 0, len(cfg.Arguments))
	for k := range cfg.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argv = append(argv, "--"+k, cfg.Arguments[k])
	}
	return argv
}

// Direct is true if the artifact is exec'd without a runtime in front.
func (t Template) Direct() bool {
	return len(t.Runtime) == 0
}
