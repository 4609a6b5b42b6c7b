package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor/mixins"
	"go.polydawn.net/pkgrun/executor/tests"
	"go.polydawn.net/pkgrun/testutil"
)

func TestTemplate(t *testing.T) {
	Convey("Templates render runtime, extras, artifact, then sorted args", t, func() {
		argv := Template{[]string{"/usr/bin/java", "-jar"}}.Render("/ws/a.jar", api.ExecutionConfig{
			ExtraRuntimeArgs: []string{"-Xmx1g"},
			Arguments:        map[string]string{"zed": "1", "alpha": "two words"},
		})
		So(argv, ShouldResemble, []string{"/usr/bin/java", "-jar", "-Xmx1g", "/ws/a.jar", "--alpha", "two words", "--zed", "1"})
	})
	Convey("An empty template runs the artifact itself", t, func() {
		So(Template{}.Direct(), ShouldBeTrue)
		So(Template{}.Render("/ws/tool", api.ExecutionConfig{}), ShouldResemble, []string{"/ws/tool"})
	})
}

func writeScript(dir, name, body string) *api.ResolvedArtifact {
	path := filepath.Join(dir, name)
	So(os.WriteFile(path, []byte(body), 0644), ShouldBeNil)
	return &api.ResolvedArtifact{
		Coordinate: api.Coordinate{"test", name},
		Version:    "1.0.0",
		Path:       path,
	}
}

func TestProcessExecutor(t *testing.T) {
	ctx := context.Background()
	Convey("Given a shell-runtime process executor", t, testutil.Requires(
		testutil.RequiresBinary("sh"),
		testutil.WithTmpdir(func(tmpDir string) {
			exe := NewExecutor(Template{[]string{"sh"}}, nil)
			outDir := filepath.Join(tmpDir, "out")

			Convey("A clean exit is SUCCESS with logs and extra files listed", func() {
				artifact := writeScript(tmpDir, "ok.sh", "echo hello\necho \"$@\" > args.txt\n")
				res, err := exe.Execute(ctx, artifact, api.ExecutionConfig{
					Arguments: map[string]string{"name": "Astra"},
				}, outDir)
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, api.StatusSuccess)
				So(*res.ExitCode, ShouldEqual, 0)
				So(res.OutputFiles, ShouldResemble, []string{
					filepath.Join(outDir, mixins.StdoutLog),
					filepath.Join(outDir, mixins.StderrLog),
					filepath.Join(outDir, "args.txt"),
				})
				body, _ := os.ReadFile(filepath.Join(outDir, mixins.StdoutLog))
				So(string(body), ShouldEqual, "hello\n")
				body, _ = os.ReadFile(filepath.Join(outDir, "args.txt"))
				So(string(body), ShouldEqual, "--name Astra\n")
				So(res.EndTime.Before(res.StartTime), ShouldBeFalse)
			})

			Convey("A nonzero exit is FAILURE carrying stderr", func() {
				artifact := writeScript(tmpDir, "bad.sh", "echo boom >&2\nexit 3\n")
				res, err := exe.Execute(ctx, artifact, api.ExecutionConfig{}, outDir)
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, api.StatusFailure)
				So(*res.ExitCode, ShouldEqual, 3)
				So(res.Message, ShouldEqual, "boom")
				So(res.Errors, ShouldContain, "boom")
			})

			Convey("A silent nonzero exit gets a stock message", func() {
				artifact := writeScript(tmpDir, "quiet.sh", "exit 7\n")
				res, err := exe.Execute(ctx, artifact, api.ExecutionConfig{}, outDir)
				So(err, ShouldBeNil)
				So(res.Message, ShouldEqual, "Process exited with code 7")
			})

			Convey("Long stderr is truncated", func() {
				artifact := writeScript(tmpDir, "loud.sh", "i=0\nwhile [ $i -lt 300 ]; do printf 'abcdefghij' >&2; i=$((i+1)); done\nexit 1\n")
				res, err := exe.Execute(ctx, artifact, api.ExecutionConfig{}, outDir)
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, api.StatusFailure)
				So(strings.HasSuffix(res.Message, "... (truncated)"), ShouldBeTrue)
				So(len(res.Message), ShouldEqual, 1000+len("... (truncated)"))
			})

			Convey("Death by signal maps to 128+signal", func() {
				artifact := writeScript(tmpDir, "sig.sh", "kill -9 $$\n")
				res, err := exe.Execute(ctx, artifact, api.ExecutionConfig{}, outDir)
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, api.StatusFailure)
				So(*res.ExitCode, ShouldEqual, 137)
			})

			Convey("Overrunning the deadline is TIMEOUT within the grace window", func() {
				artifact := writeScript(tmpDir, "slow.sh", "sleep 5 &\nwait\n")
				timeout := 300 * time.Millisecond
				res, err := exe.Execute(ctx, artifact, api.ExecutionConfig{Timeout: timeout}, outDir)
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, api.StatusTimeout)
				So(*res.ExitCode, ShouldEqual, -1)
				So(res.DurationMs, ShouldBeGreaterThanOrEqualTo, timeout.Milliseconds())
				So(res.DurationMs, ShouldBeLessThan, (timeout + 2*time.Second).Milliseconds())
			})

			Convey("A missing runtime is a launch error", func() {
				artifact := writeScript(tmpDir, "never.sh", "exit 0\n")
				res, err := NewExecutor(Template{[]string{"/nonexistent/runtime"}}, nil).Execute(ctx, artifact, api.ExecutionConfig{}, outDir)
				So(err, testutil.ShouldHaveCategory, api.ErrProcessLaunch)
				So(res.Status, ShouldEqual, api.StatusFailure)
				So(res.ExitCode, ShouldBeNil)
			})

			Convey("With no runtime, the artifact itself is run", func() {
				artifact := writeScript(tmpDir, "tool", "#!/bin/sh\necho direct\n")
				res, err := NewExecutor(Template{}, nil).Execute(ctx, artifact, api.ExecutionConfig{}, outDir)
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, api.StatusSuccess)
				body, _ := os.ReadFile(filepath.Join(outDir, mixins.StdoutLog))
				So(string(body), ShouldEqual, "direct\n")
			})
		}),
	))
}

func TestRunner(t *testing.T) {
	Convey("The runner takes a ready argv", t, testutil.Requires(
		testutil.RequiresBinary("sh"),
		testutil.WithTmpdir(func(tmpDir string) {
			var buf strings.Builder
			out, err := Run(context.Background(), Spec{
				Argv:   []string{"sh", "-c", "pwd; exit 5"},
				Dir:    tmpDir,
				Stdout: &buf,
			})
			So(err, ShouldBeNil)
			So(out.ExitCode, ShouldEqual, 5)
			So(out.TimedOut, ShouldBeFalse)
			So(buf.String(), ShouldContainSubstring, filepath.Base(tmpDir))

			Convey("A cancelled context kills the process group", func() {
				ctx, cancel := context.WithCancel(context.Background())
				go func() {
					time.Sleep(100 * time.Millisecond)
					cancel()
				}()
				out, err := Run(ctx, Spec{
					Argv: []string{"sh", "-c", "sleep 10 & sleep 10"},
					Dir:  tmpDir,
				})
				So(err, ShouldBeNil)
				So(out.TimedOut, ShouldBeTrue)
				So(out.ExitCode, ShouldEqual, -1)
				So(out.End.Sub(out.Start), ShouldBeLessThan, 5*time.Second)
			})

			Convey("An empty argv is a usage error", func() {
				_, err := Run(context.Background(), Spec{Dir: tmpDir})
				So(err, testutil.ShouldHaveCategory, api.ErrUsage)
			})
		}),
	))
}

func TestProcessCompliance(t *testing.T) {
	Convey("The process executor meets the executor contract", t, testutil.Requires(
		testutil.RequiresBinary("sh"),
		testutil.WithTmpdir(func(tmpDir string) {
			fx := tests.Fixtures{
				Succeeding: func(dir string) *api.ResolvedArtifact { return writeScript(dir, "ok.sh", "echo fine\n") },
				Failing:    func(dir string) *api.ResolvedArtifact { return writeScript(dir, "no.sh", "exit 2\n") },
				Sleeping:   func(dir string) *api.ResolvedArtifact { return writeScript(dir, "zz.sh", "sleep 10\n") },
			}
			tests.CheckBasicExecution(NewExecutor(Template{[]string{"sh"}}, nil), fx, tmpDir, "sh")
			tests.CheckBasicExecution(NewExecutor(Template{[]string{"sh", "-e"}}, nil), fx, tmpDir, "sh", "errexit")
		}),
	))
}
