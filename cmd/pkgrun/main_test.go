package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/testutil"
)

// Returns the behavior from an invocation of Main.
func determineBehavior(args ...string) behavior {
	stdin := &bytes.Buffer{}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return Main(context.Background(), args, stdin, stdout, stderr)
}

func invoke(args ...string) (exitCode int, err error, stdout, stderr string) {
	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	exitCode, err = Main(context.Background(), args, &bytes.Buffer{}, stdoutBuf, stderrBuf).action()
	return exitCode, err, stdoutBuf.String(), stderrBuf.String()
}

func TestCLIParse(t *testing.T) {
	Convey("Parsing", t, func() {
		Convey("Unknown commands are usage errors", func() {
			bhv := determineBehavior("pkgrun", "wow")
			So(bhv.parsedArgs, ShouldImplement, (*error)(nil))
			code, err := bhv.action()
			So(code, ShouldEqual, 1)
			So(err, testutil.ShouldHaveCategory, api.ErrUsage)
		})

		Convey("Run needs a coordinate", func() {
			bhv := determineBehavior("pkgrun", "run")
			So(bhv.parsedArgs, ShouldImplement, (*error)(nil))
		})

		Convey("Run flags land in the args", func() {
			bhv := determineBehavior("pkgrun", "run", "example:echo",
				"-v", "1.+", "--mode", "plugin",
				"-a", "name=Astra", "--arg", "greeting=Howdy",
				"--timeout", "90s", "--reports", "out")
			args, ok := bhv.parsedArgs.(*runArgs)
			So(ok, ShouldBeTrue)
			So(args.Coordinate, ShouldEqual, "example:echo")
			So(args.Version, ShouldEqual, "1.+")
			So(args.Mode, ShouldEqual, "plugin")
			So(args.Arguments, ShouldResemble, map[string]string{"name": "Astra", "greeting": "Howdy"})
			So(args.Timeout, ShouldEqual, 90*time.Second)
			So(args.ReportsDir, ShouldEqual, "out")
		})

		Convey("Run defaults to the latest release in process mode", func() {
			args := determineBehavior("pkgrun", "run", "example:echo").parsedArgs.(*runArgs)
			So(args.Version, ShouldEqual, "latest.release")
			So(args.Mode, ShouldEqual, "process")
		})

		Convey("Unknown modes are rejected", func() {
			bhv := determineBehavior("pkgrun", "run", "example:echo", "--mode", "container")
			So(bhv.parsedArgs, ShouldImplement, (*error)(nil))
		})

		Convey("Batch flags land in the args", func() {
			args := determineBehavior("pkgrun", "batch", "jobs.yaml", "--parallel", "--max-concurrency", "5").parsedArgs.(*batchArgs)
			So(args.BatchPath, ShouldEqual, "jobs.yaml")
			So(args.Parallel, ShouldBeTrue)
			So(args.MaxConcurrency, ShouldEqual, 5)
			So(args.DryRun, ShouldBeFalse)
		})
	})
}

func TestCLI(t *testing.T) {
	Convey("Given the examples published to a dir store", t, testutil.Requires(
		testutil.RequiresBinary("sh"),
		testutil.WithTmpdir(func(tmpDir string) {
			storeDir := filepath.Join(tmpDir, "store")
			code, err, stdout, _ := invoke("pkgrun", "examples", storeDir)
			So(err, ShouldBeNil)
			So(code, ShouldEqual, 0)
			So(stdout, ShouldContainSubstring, "example:echo:1.1.0\n")
			common := []string{"pkgrun",
				"--store-dir", storeDir,
				"--workspace", filepath.Join(tmpDir, "ws"),
				"--runtime", "sh",
				"--log-level", "crit",
			}
			cmd := func(args ...string) []string {
				return append(append([]string{}, common...), args...)
			}

			Convey("Running echo prints a summary", func() {
				reports := filepath.Join(tmpDir, "reports")
				code, err, stdout, _ := invoke(cmd("run", "example:echo", "-a", "name=CLI", "--reports", reports)...)
				So(err, ShouldBeNil)
				So(code, ShouldEqual, 0)
				out := paveDigests(paveIds(paveAnsicolors(stdout)))
				So(out, ShouldContainSubstring, "SUCCESS (exit 0): Process completed successfully\n")
				So(out, ShouldContainSubstring, "artifact: example:echo:1.1.0 sha256:xxxx\n")
				So(out, ShouldContainSubstring, "arg: --name CLI\n")
				body, _ := os.ReadFile(filepath.Join(reports, "stdout.log"))
				So(string(body), ShouldEqual, "Hello, CLI!\n")
			})

			Convey("Json output is the run summary", func() {
				code, err, stdout, _ := invoke(cmd("--format", "json", "run", "example:greeter", "--mode", "plugin", "-a", "name=Json")...)
				So(err, ShouldBeNil)
				So(code, ShouldEqual, 0)
				var summary api.RunSummary
				So(api.UnmarshalJSON([]byte(stdout), &summary), ShouldBeNil)
				So(summary.ExecutionResult.Status, ShouldEqual, api.StatusSuccess)
				So(summary.ResolvedArtifact.Coordinate, ShouldResemble, api.Coordinate{"example", "greeter"})
			})

			Convey("Missing packages exit nonzero", func() {
				code, err, _, _ := invoke(cmd("run", "example:nope")...)
				So(err, testutil.ShouldHaveCategory, api.ErrNotFound)
				So(code, ShouldEqual, 1)
			})

			Convey("Batches run from a file", func() {
				batchFile := filepath.Join(tmpDir, "batch.yaml")
				So(os.WriteFile(batchFile, []byte(strings.Join([]string{
					"jobs:",
					"  - {coordinate: example:echo, version: '1.0.0', argv: [--name, One]}",
					"  - {coordinate: example:echo, version: '9.9.9'}",
				}, "\n")), 0644), ShouldBeNil)

				code, err, stdout, _ := invoke(cmd("batch", batchFile, "--parallel")...)
				So(err, ShouldBeNil)
				So(code, ShouldEqual, 1)
				lines := strings.Split(paveDurations(paveIds(paveAnsicolors(stdout))), "\n")
				So(lines, ShouldHaveLength, 5)
				So(lines[0], ShouldEqual, "✔⟩ [0] example:echo@1.0.0 (N ms): Job completed successfully")
				So(lines[1], ShouldStartWith, "    sh ")
				So(lines[1], ShouldEndWith, " --name One")
				So(lines[2], ShouldStartWith, "✘⟩ [1] example:echo@9.9.9 (N ms): Execution failed: ")
				So(lines[3], ShouldEqual, "∴⟩ batch xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx: 2 jobs, 1 successful, 1 failed, in N ms")

				Convey("... and dry runs succeed without running", func() {
					code, err, stdout, _ := invoke(cmd("--format", "json", "batch", batchFile, "--dry-run")...)
					So(err, ShouldBeNil)
					So(code, ShouldEqual, 1)
					var summary api.BatchSummary
					So(api.UnmarshalJSON([]byte(stdout), &summary), ShouldBeNil)
					So(summary.Results[0].Message, ShouldEqual, "Dry run successful")
					So(summary.Results[1].Success, ShouldBeFalse)
				})
			})
		}),
	))
}
