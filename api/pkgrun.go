package api

/*
	This file is all the serializable types used to describe a run of a
	package and the records we keep about it.

	Batch types are in 'batch.go'; the store interface is in 'store.go'.
*/

import (
	"time"

	"github.com/opencontainers/go-digest"
)

const DefaultTimeout = 5 * time.Minute

type ExecutionMode string

const (
	ModeProcess ExecutionMode = "process" // Run the artifact as a child process.
	ModePlugin  ExecutionMode = "plugin"  // Load the artifact's code into an isolated interpreter in this process.
)

type (
	/*
		ExecutionConfig is everything the caller says about one run.

		It's never mutated once a run starts.  The coordinate and version
		are kept in their string forms (as the caller typed them) so that
		they can be echoed back in reports even if they fail to parse.
	*/
	ExecutionConfig struct {
		Coordinate       string            `json:"coordinate"`
		Version          string            `json:"version"`
		Mode             ExecutionMode     `json:"mode"`
		Arguments        map[string]string `json:"arguments"`
		ReportsDir       string            `json:"reportsDir"`
		WorkspaceDir     string            `json:"workspaceDir"`
		Timeout          time.Duration     `json:"timeout"`
		ExtraRuntimeArgs []string          `json:"extraRuntimeArgs"`
	}

	/*
		ResolvedArtifact is a coordinate pinned to a concrete version,
		with its content downloaded to `Path` and hashed.
	*/
	ResolvedArtifact struct {
		Coordinate   Coordinate    `json:"coordinate"`
		Version      string        `json:"version"`
		Digest       digest.Digest `json:"digest"`
		Path         string        `json:"path"`
		Dependencies []string      `json:"dependencies"` // Informational only.
	}

	ExecutionResult struct {
		Status      Status                 `json:"status"`
		ExitCode    *int                   `json:"exitCode"` // Nil when there was never a process (plugins, failures before launch).
		StartTime   time.Time              `json:"startTime"`
		EndTime     time.Time              `json:"endTime"`
		DurationMs  int64                  `json:"durationMs"`
		OutputFiles []string               `json:"outputFiles"`
		Metrics     map[string]interface{} `json:"metrics"`
		Errors      []string               `json:"errors"`
		Message     string                 `json:"message"`
	}

	/*
		RunSummary is the canonical record of one execution.

		It is created when a run starts, filled in by each stage, and
		frozen when handed back to the caller.  It's what gets written
		as 'run-summary.json'.
	*/
	RunSummary struct {
		ExecutionID      string            `json:"executionId"`
		Timestamp        time.Time         `json:"timestamp"`
		Config           ExecutionConfig   `json:"config"`
		ResolvedArtifact *ResolvedArtifact `json:"resolvedArtifact"`
		ExecutionResult  *ExecutionResult  `json:"executionResult"`
		OutputFiles      []string          `json:"outputFiles"`
		Summary          string            `json:"summary"`
	}
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusSkipped Status = "SKIPPED"
	StatusTimeout Status = "TIMEOUT"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped, StatusTimeout:
		return true
	}
	return false
}

// Succeeded is true for SUCCESS and SKIPPED.
func (s Status) Succeeded() bool {
	return s == StatusSuccess || s == StatusSkipped
}

// EffectiveTimeout returns the configured timeout, or DefaultTimeout if unset.
func (cfg ExecutionConfig) EffectiveTimeout() time.Duration {
	if cfg.Timeout <= 0 {
		return DefaultTimeout
	}
	return cfg.Timeout
}

func (cfg ExecutionConfig) EffectiveMode() ExecutionMode {
	if cfg.Mode == "" {
		return ModeProcess
	}
	return cfg.Mode
}

/*
	Stamp the end time and duration.

	Duration is computed from the monotonic clock readings when both
	times carry one, so it's honest even if the wall clock jumps.
*/
func (res *ExecutionResult) Finish(end time.Time) {
	res.EndTime = end
	res.DurationMs = end.Sub(res.StartTime).Milliseconds()
}

// IntPtr is a small helper for filling in `ExitCode`.
func IntPtr(i int) *int {
	return &i
}
