package tests

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor"
	"go.polydawn.net/pkgrun/executor/mixins"
	"go.polydawn.net/pkgrun/testutil"
)

/*
	Fixtures make artifacts of each flavor an executor must handle,
	placed somewhere under the given dir.
*/
type Fixtures struct {
	Succeeding func(dir string) *api.ResolvedArtifact // Exits cleanly.
	Failing    func(dir string) *api.ResolvedArtifact // Reports failure.
	Sleeping   func(dir string) *api.ResolvedArtifact // Takes at least several seconds.
}

/*
	Checks every executor must pass, whatever its mode.

	Call inside a Convey block with a fresh tmpdir.  The description
	is appended to the suite's title, so the same suite can run more
	than once in a package.
*/
func CheckBasicExecution(exe executor.Executor, fx Fixtures, tmpDir string, desc ...string) {
	Convey("Basic execution"+testutil.AdditionalDescription(desc...), func() {
		checkBasicExecution(exe, fx, tmpDir)
	})
}

func checkBasicExecution(exe executor.Executor, fx Fixtures, tmpDir string) {
	ctx := context.Background()
	outDir := filepath.Join(tmpDir, "out")

	Convey("a succeeding artifact reports SUCCESS", func() {
		res, err := exe.Execute(ctx, fx.Succeeding(tmpDir), api.ExecutionConfig{}, outDir)
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, api.StatusSuccess)
		shouldBeWellFormed(res, outDir)
	})

	Convey("a failing artifact reports FAILURE, not an error", func() {
		res, err := exe.Execute(ctx, fx.Failing(tmpDir), api.ExecutionConfig{}, outDir)
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, api.StatusFailure)
		So(res.Message, ShouldNotBeBlank)
		shouldBeWellFormed(res, outDir)
	})

	Convey("overrunning the timeout reports TIMEOUT promptly", func() {
		timeout := 250 * time.Millisecond
		res, err := exe.Execute(ctx, fx.Sleeping(tmpDir), api.ExecutionConfig{Timeout: timeout}, outDir)
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, api.StatusTimeout)
		So(res.ExitCode, ShouldNotBeNil)
		So(*res.ExitCode, ShouldEqual, -1)
		So(res.DurationMs, ShouldBeGreaterThanOrEqualTo, timeout.Milliseconds())
		So(res.DurationMs, ShouldBeLessThan, (timeout + 2*time.Second).Milliseconds())
		shouldBeWellFormed(res, outDir)
	})

	Convey("a cancelled context stops the run", func() {
		ctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()
		res, err := exe.Execute(ctx, fx.Sleeping(tmpDir), api.ExecutionConfig{}, outDir)
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, api.StatusTimeout)
		So(res.Message, ShouldEqual, "Execution canceled")
		So(res.DurationMs, ShouldBeLessThan, 2000)
	})
}

func shouldBeWellFormed(res api.ExecutionResult, outDir string) {
	So(res.Status.Valid(), ShouldBeTrue)
	So(res.EndTime.Before(res.StartTime), ShouldBeFalse)
	So(res.DurationMs, ShouldEqual, res.EndTime.Sub(res.StartTime).Milliseconds())
	So(len(res.OutputFiles), ShouldBeGreaterThanOrEqualTo, 2)
	So(res.OutputFiles[0], ShouldEqual, filepath.Join(outDir, mixins.StdoutLog))
	So(res.OutputFiles[1], ShouldEqual, filepath.Join(outDir, mixins.StderrLog))
}
