package api

import (
	"time"
)

type (
	// JobConfig is one entry in a batch.  Argv is appended after the
	// artifact path when the job is run.
	JobConfig struct {
		Coordinate string   `json:"coordinate" yaml:"coordinate"`
		Version    string   `json:"version" yaml:"version"`
		Argv       []string `json:"argv" yaml:"argv"`
	}

	JobResult struct {
		Job          JobConfig `json:"job"`
		Success      bool      `json:"success"`
		ExitCode     *int      `json:"exitCode"`
		Message      string    `json:"message"`
		Start        time.Time `json:"start"`
		End          time.Time `json:"end"`
		DurationMs   int64     `json:"durationMs"`
		ResolvedPath string    `json:"resolvedPath"`
		Invocation   string    `json:"invocation,omitempty"` // The command line, as run (or as it would have been).
	}

	BatchSummary struct {
		BatchID    string      `json:"batchId"`
		Total      int         `json:"totalJobs"`
		Successful int         `json:"successfulJobs"`
		Failed     int         `json:"failedJobs"`
		Start      time.Time   `json:"startTime"`
		End        time.Time   `json:"endTime"`
		DurationMs int64       `json:"totalDurationMs"`
		Results    []JobResult `json:"results"`
	}
)

// ExitCode is 0 if every job in the batch succeeded, 1 otherwise.
func (bs BatchSummary) ExitCode() int {
	if bs.Failed == 0 && bs.Successful == bs.Total {
		return 0
	}
	return 1
}
