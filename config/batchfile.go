package config

import (
	"bytes"
	"os"
	"time"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/yaml.v3"

	"go.polydawn.net/pkgrun/api"
)

/*
	A batch file lists jobs, plus optional overrides of the batch
	settings from the main config.  Unset overrides are nil.
*/
type BatchFile struct {
	Jobs           []api.JobConfig `yaml:"jobs"`
	Parallel       *bool           `yaml:"parallel,omitempty"`
	MaxConcurrency *int            `yaml:"maxConcurrency,omitempty"`
	StopOnFailure  *bool           `yaml:"stopOnFailure,omitempty"`
	DryRun         *bool           `yaml:"dryRun,omitempty"`
	Timeout        *time.Duration  `yaml:"timeout,omitempty"`
}

func LoadBatchFile(path string) (BatchFile, error) {
	var bf BatchFile
	body, err := os.ReadFile(path)
	if err != nil {
		return bf, Errorf(api.ErrUsage, "cannot read batch file: %s", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(true)
	if err := dec.Decode(&bf); err != nil {
		return bf, Errorf(api.ErrUsage, "cannot parse batch file %q: %s", path, err)
	}
	for i, job := range bf.Jobs {
		if job.Coordinate == "" {
			return bf, Errorf(api.ErrUsage, "batch file %q: job %d has no coordinate", path, i)
		}
		if job.Version == "" {
			bf.Jobs[i].Version = api.LatestReleaseToken
		}
	}
	return bf, nil
}
