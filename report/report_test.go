package report

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/opencontainers/go-digest"
	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/testutil"
)

func fixtureSummary(status api.Status) (*api.RunSummary, *api.ExecutionResult) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result := &api.ExecutionResult{
		Status:      status,
		StartTime:   start,
		EndTime:     start.Add(1500 * time.Millisecond),
		DurationMs:  1500,
		OutputFiles: []string{"/reports/stdout.log", "/reports/stderr.log"},
		Metrics:     map[string]interface{}{},
		Errors:      []string{},
		Message:     "done",
	}
	if status != api.StatusSuccess {
		result.Message = `went <bad> & "worse"`
		result.Errors = []string{"first <error>", "second"}
	}
	return &api.RunSummary{
		ExecutionID: "0b6a2c8e-1111-4222-8333-944455556666",
		Timestamp:   start,
		Config: api.ExecutionConfig{
			Coordinate: "example:echo",
			Version:    "1.0.0",
			Arguments:  map[string]string{"name": "<Astra>"},
		},
		ResolvedArtifact: &api.ResolvedArtifact{
			Coordinate:   api.Coordinate{"example", "echo"},
			Version:      "1.0.0",
			Digest:       digest.FromString("echo"),
			Path:         "/ws/echo-1.0.0",
			Dependencies: []string{},
		},
		ExecutionResult: result,
		OutputFiles:     result.OutputFiles,
		Summary:         "whatever",
	}, result
}

func readFile(fs billy.Filesystem, name string) string {
	body, err := util.ReadFile(fs, name)
	So(err, ShouldBeNil)
	return string(body)
}

func TestGenerate(t *testing.T) {
	Convey("Reports for a successful run", t, func() {
		fs := memfs.New()
		summary, result := fixtureSummary(api.StatusSuccess)
		So(GenerateTo(nil, fs, summary, result), ShouldBeNil)

		Convey("all files exist", func() {
			for _, name := range []string{SummaryFile, ResultsFile, JUnitFile, HTMLFile, "stdout.log", "stderr.log"} {
				_, err := fs.Stat(name)
				So(err, ShouldBeNil)
			}
		})
		Convey("the summary json round-trips", func() {
			var back api.RunSummary
			So(api.UnmarshalJSON([]byte(readFile(fs, SummaryFile)), &back), ShouldBeNil)
			So(back.ExecutionID, ShouldEqual, summary.ExecutionID)
			So(back.ExecutionResult.Status, ShouldEqual, api.StatusSuccess)
			So(back.ResolvedArtifact.Digest, ShouldEqual, digest.FromString("echo"))
		})
		Convey("junit has one passing case", func() {
			var suite junitSuite
			So(xml.Unmarshal([]byte(readFile(fs, JUnitFile)), &suite), ShouldBeNil)
			So(suite.Name, ShouldEqual, "example.echo")
			So(suite.Tests, ShouldEqual, 1)
			So(suite.Failures, ShouldEqual, 0)
			So(suite.Time, ShouldEqual, "1.500")
			So(suite.Cases, ShouldHaveLength, 1)
			So(suite.Cases[0].Name, ShouldEqual, "execute")
			So(suite.Cases[0].Classname, ShouldEqual, "example.echo")
			So(suite.Cases[0].Failure, ShouldBeNil)
		})
		Convey("html carries the digest and escapes arguments", func() {
			page := readFile(fs, HTMLFile)
			So(page, ShouldContainSubstring, digest.FromString("echo").String())
			So(page, ShouldContainSubstring, "&lt;Astra&gt;")
			So(page, ShouldNotContainSubstring, "<Astra>")
		})
	})

	for _, status := range []api.Status{api.StatusFailure, api.StatusTimeout} {
		Convey("Reports for a run ending "+string(status), t, func() {
			fs := memfs.New()
			summary, result := fixtureSummary(status)
			So(GenerateTo(nil, fs, summary, result), ShouldBeNil)

			Convey("junit has a failure element, escaped", func() {
				raw := readFile(fs, JUnitFile)
				So(raw, ShouldNotContainSubstring, "<bad>")
				So(raw, ShouldNotContainSubstring, "<error>")
				var suite junitSuite
				So(xml.Unmarshal([]byte(raw), &suite), ShouldBeNil)
				So(suite.Failures, ShouldEqual, 1)
				So(suite.Cases[0].Failure, ShouldNotBeNil)
				So(suite.Cases[0].Failure.Message, ShouldEqual, `went <bad> & "worse"`)
				So(suite.Cases[0].Failure.Type, ShouldEqual, string(status))
				So(suite.Cases[0].Failure.Body, ShouldEqual, "first <error>\nsecond\n")
			})
			Convey("html lists the errors, escaped", func() {
				page := readFile(fs, HTMLFile)
				So(page, ShouldContainSubstring, "first &lt;error&gt;")
				So(page, ShouldContainSubstring, ">"+string(status)+"</span>")
			})
		})
	}

	Convey("Existing logs are left alone", t, func() {
		fs := memfs.New()
		So(util.WriteFile(fs, "stdout.log", []byte("hello\n"), 0644), ShouldBeNil)
		summary, result := fixtureSummary(api.StatusSuccess)
		So(GenerateTo(nil, fs, summary, result), ShouldBeNil)
		So(readFile(fs, "stdout.log"), ShouldEqual, "hello\n")
		So(readFile(fs, "stderr.log"), ShouldEqual, "")
	})

	Convey("A summary without a resolved artifact still reports", t, func() {
		fs := memfs.New()
		summary, _ := fixtureSummary(api.StatusFailure)
		summary.ResolvedArtifact = nil
		summary.ExecutionResult = nil
		summary.Config.Coordinate = "not-a-coordinate"
		So(GenerateTo(nil, fs, summary, nil), ShouldBeNil)
		var suite junitSuite
		So(xml.Unmarshal([]byte(readFile(fs, JUnitFile)), &suite), ShouldBeNil)
		So(suite.Name, ShouldEqual, "not-a-coordinate")
		So(suite.Failures, ShouldEqual, 1)
	})

	Convey("One unwritable report doesn't stop the others", t, func() {
		fs := brokenFS{memfs.New(), JUnitFile}
		summary, result := fixtureSummary(api.StatusSuccess)
		err := GenerateTo(nil, fs, summary, result)
		So(err, testutil.ShouldHaveCategory, api.ErrReportWrite)
		So(err.Error(), ShouldContainSubstring, JUnitFile)
		for _, name := range []string{SummaryFile, ResultsFile, HTMLFile, "stdout.log", "stderr.log"} {
			_, err := fs.Stat(name)
			So(err, ShouldBeNil)
		}
	})

	Convey("Generate works on the real filesystem", t, testutil.WithTmpdir(func(tmpDir string) {
		reportsDir := filepath.Join(tmpDir, "reports", "nested")
		summary, result := fixtureSummary(api.StatusSuccess)
		So(Generate(nil, summary, result, reportsDir), ShouldBeNil)
		So(filepath.Join(reportsDir, SummaryFile), testutil.ShouldBeFile)
		body, _ := os.ReadFile(filepath.Join(reportsDir, JUnitFile))
		So(strings.HasPrefix(string(body), "<?xml"), ShouldBeTrue)
	}))
}

type brokenFS struct {
	billy.Filesystem
	broken string
}

func (fs brokenFS) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	if name == fs.broken {
		return nil, errors.New("disk on fire")
	}
	return fs.Filesystem.OpenFile(name, flag, perm)
}
