/*
	The report package writes the standard set of files describing a run
	into its reports directory:

		run-summary.json   the RunSummary
		results.json       the ExecutionResult
		junit.xml          one suite, one case, for CI dashboards
		summary.html       a human-readable page
		stdout.log         (created empty if the run didn't produce it)
		stderr.log         (likewise)

	Writing reports is best-effort.  Every file is attempted even if
	others fail, and failures come back as a single `ErrReportWrite`
	error that callers should log and otherwise ignore.
*/
package report

import (
	"bytes"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/inconshreveable/log15"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor/mixins"
)

const (
	SummaryFile = "run-summary.json"
	ResultsFile = "results.json"
	JUnitFile   = "junit.xml"
	HTMLFile    = "summary.html"
)

// Generate writes all reports into `reportsDir`, creating it if needed.
func Generate(log log15.Logger, summary *api.RunSummary, result *api.ExecutionResult, reportsDir string) error {
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return Errorf(api.ErrReportWrite, "cannot create reports dir: %s", err)
	}
	return GenerateTo(log, osfs.New(reportsDir), summary, result)
}

/*
	GenerateTo writes all reports into the root of the given filesystem.

	If `result` is nil, the summary's own result is used; if that's nil
	too, the run is reported as a failure that never produced a result.
*/
func GenerateTo(log log15.Logger, fs billy.Filesystem, summary *api.RunSummary, result *api.ExecutionResult) (err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	if log == nil {
		log = log15.New()
		log.SetHandler(log15.DiscardHandler())
	}
	if result == nil {
		result = summary.ExecutionResult
	}
	if result == nil {
		result = &api.ExecutionResult{
			Status:  api.StatusFailure,
			Message: "no execution result was produced",
		}
	}
	log = log.New("ExecutionID", summary.ExecutionID)

	var failed []string
	attempt := func(name string, render func() ([]byte, error)) {
		body, err := render()
		if err == nil {
			err = util.WriteFile(fs, name, body, 0644)
		}
		if err != nil {
			log.Warn("failed to write report", "file", name, "err", err)
			failed = append(failed, name+": "+err.Error())
		}
	}
	attempt(SummaryFile, func() ([]byte, error) { return api.MarshalJSON(summary) })
	attempt(ResultsFile, func() ([]byte, error) { return api.MarshalJSON(result) })
	attempt(JUnitFile, func() ([]byte, error) { return renderJUnit(summary, result) })
	attempt(HTMLFile, func() ([]byte, error) {
		var buf bytes.Buffer
		err := renderHTML(&buf, summary, result)
		return buf.Bytes(), err
	})
	for _, name := range []string{mixins.StdoutLog, mixins.StderrLog} {
		if err := touch(fs, name); err != nil {
			log.Warn("failed to write report", "file", name, "err", err)
			failed = append(failed, name+": "+err.Error())
		}
	}

	if len(failed) > 0 {
		return Errorf(api.ErrReportWrite, "failed to write %d report file(s): %s", len(failed), strings.Join(failed, "; "))
	}
	log.Debug("reports written", "root", fs.Root())
	return nil
}

// Create the file empty if it doesn't exist; leave it alone if it does.
func touch(fs billy.Filesystem, name string) error {
	if _, err := fs.Stat(name); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	f, err := fs.Create(name)
	if err != nil {
		return err
	}
	return f.Close()
}

// Dotted form of the coordinate string, even if it never parsed.
func suiteName(summary *api.RunSummary) string {
	if summary.ResolvedArtifact != nil {
		return summary.ResolvedArtifact.Coordinate.Dotted()
	}
	return strings.ReplaceAll(summary.Config.Coordinate, ":", ".")
}
