package mixins

import (
	"os"
	"path/filepath"
	"sort"
)

/*
	List what a run left in its output directory.

	The two log files come first (if they exist), then every other regular
	file found under the directory, sorted, skipping the report files.
	Paths are absolute (well, rooted at `dir`).
*/
func DiscoverOutputs(dir string) []string {
	outputs := []string{}
	for _, name := range []string{StdoutLog, StderrLog} {
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil && fi.Mode().IsRegular() {
			outputs = append(outputs, filepath.Join(dir, name))
		}
	}
	var others []string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Unreadable corners just don't get listed.
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		if rel == StdoutLog || rel == StderrLog {
			return nil
		}
		if _, isReport := ReportFiles[rel]; isReport {
			return nil
		}
		others = append(others, path)
		return nil
	})
	sort.Strings(others)
	return append(outputs, others...)
}

// AppendOutputs adds each path not already present, keeping order.
func AppendOutputs(outputs []string, more ...string) []string {
	seen := make(map[string]struct{}, len(outputs))
	for _, p := range outputs {
		seen[p] = struct{}{}
	}
	for _, p := range more {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		outputs = append(outputs, p)
	}
	return outputs
}
