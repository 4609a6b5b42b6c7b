package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/examples"
	"go.polydawn.net/pkgrun/store/memstore"
	"go.polydawn.net/pkgrun/testutil"
)

func fixtureStore() *memstore.Store {
	store := memstore.New()
	So(examples.Fill(store), ShouldBeNil)
	store.Put(api.Coordinate{"test", "nap"}, "1.0.0", []byte("sleep 0.5\necho rested\n"))
	store.Put(api.Coordinate{"test", "grumpy"}, "1.0.0", []byte("sleep 0.5\necho nope >&2\nexit 4\n"))
	store.Put(api.Coordinate{"test", "sleepy"}, "1.0.0", []byte("sleep 10\n"))
	return store
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	Convey("Given a batch of jobs over the example packages", t, testutil.Requires(
		testutil.RequiresBinary("sh"),
		func(c C) {
			testutil.WithTmpdir(func(tmpDir string) {
				opts := Options{
					MaxConcurrency: 2,
					WorkspaceDir:   tmpDir,
					Runtime:        examples.EchoRuntime,
					Store:          fixtureStore(),
					Log:            testutil.TestLogger(c),
				}
				jobs := []api.JobConfig{
					{Coordinate: "test:nap", Version: "1.0.0"},
					{Coordinate: "test:grumpy", Version: "latest.release"},
					{Coordinate: "test:nap", Version: "1.+"},
				}

				Convey("Parallel runs record every job, in input order, faster than serially", func() {
					opts.Parallel = true
					summary := Run(ctx, opts, jobs)
					So(summary.BatchID, ShouldNotBeBlank)
					So(summary.Total, ShouldEqual, 3)
					So(summary.Successful, ShouldEqual, 2)
					So(summary.Failed, ShouldEqual, 1)
					So(summary.ExitCode(), ShouldEqual, 1)
					So(summary.Results, ShouldHaveLength, 3)
					var sum int64
					for i, res := range summary.Results {
						So(res.Job, ShouldResemble, jobs[i])
						So(res.ExitCode, ShouldNotBeNil)
						So(res.End, ShouldHappenOnOrAfter, res.Start)
						sum += res.DurationMs
					}
					So(summary.DurationMs, ShouldBeLessThan, sum)

					So(summary.Results[0].Success, ShouldBeTrue)
					So(summary.Results[0].Message, ShouldEqual, "Job completed successfully")
					So(summary.Results[1].Success, ShouldBeFalse)
					So(*summary.Results[1].ExitCode, ShouldEqual, 4)
					So(summary.Results[1].Message, ShouldEqual, "Job failed with exit code 4: nope")

					Convey("... each in its own workspace", func() {
						ws := filepath.Join(tmpDir, "workspace", "job-0-test_nap")
						stdout, err := os.ReadFile(filepath.Join(ws, "stdout.log"))
						So(err, ShouldBeNil)
						So(string(stdout), ShouldEqual, "rested\n")
						So(summary.Results[0].ResolvedPath, ShouldStartWith, ws)
						So(summary.Results[2].ResolvedPath, ShouldStartWith, filepath.Join(tmpDir, "workspace", "job-2-test_nap"))
					})
				})

				Convey("Sequential runs honor stop-on-failure", func() {
					opts.StopOnFailure = true
					summary := Run(ctx, opts, jobs)
					So(summary.Total, ShouldEqual, 2)
					So(summary.Successful, ShouldEqual, 1)
					So(summary.Failed, ShouldEqual, 1)
					So(summary.Results[1].Job.Coordinate, ShouldEqual, "test:grumpy")
					_, err := os.Stat(filepath.Join(tmpDir, "workspace", "job-2-test_nap"))
					So(os.IsNotExist(err), ShouldBeTrue)
				})

				Convey("Sequential runs without stop-on-failure run everything", func() {
					summary := Run(ctx, opts, jobs)
					So(summary.Total, ShouldEqual, 3)
					So(summary.Failed, ShouldEqual, 1)
				})

				Convey("Job arguments follow the artifact path", func() {
					summary := Run(ctx, opts, []api.JobConfig{
						{Coordinate: "example:echo", Version: "1.0.0", Argv: []string{"--name", "Batch"}},
					})
					So(summary.ExitCode(), ShouldEqual, 0)
					res := summary.Results[0]
					So(res.Invocation, ShouldEqual, "sh "+res.ResolvedPath+" --name Batch")
					stdout, _ := os.ReadFile(filepath.Join(tmpDir, "workspace", "job-0-example_echo", "stdout.log"))
					So(string(stdout), ShouldContainSubstring, "Hello, Batch!")
				})

				Convey("Dry runs resolve but never execute", func() {
					opts.DryRun = true
					summary := Run(ctx, opts, jobs)
					So(summary.ExitCode(), ShouldEqual, 0)
					for _, res := range summary.Results {
						So(res.Success, ShouldBeTrue)
						So(res.Message, ShouldEqual, "Dry run successful")
						So(res.ResolvedPath, testutil.ShouldBeFile)
						So(strings.HasSuffix(res.Invocation, res.ResolvedPath), ShouldBeTrue)
					}
					_, err := os.Stat(filepath.Join(tmpDir, "workspace", "job-0-test_nap", "stdout.log"))
					So(os.IsNotExist(err), ShouldBeTrue)
				})

				Convey("Jobs that overrun are killed and reported", func() {
					opts.Timeout = 200 * time.Millisecond
					summary := Run(ctx, opts, []api.JobConfig{{Coordinate: "test:sleepy", Version: "1.0.0"}})
					So(summary.Failed, ShouldEqual, 1)
					res := summary.Results[0]
					So(*res.ExitCode, ShouldEqual, -1)
					So(res.Message, ShouldEqual, "Job timed out after 200ms")
					So(res.DurationMs, ShouldBeLessThan, 5000)
				})

				Convey("Bad jobs fail alone", func() {
					opts.Parallel = true
					summary := Run(ctx, opts, []api.JobConfig{
						{Coordinate: "not-a-coordinate", Version: "1.0.0"},
						{Coordinate: "example:nope", Version: "1.0.0"},
						{Coordinate: "test:nap", Version: "1.0.0"},
					})
					So(summary.Failed, ShouldEqual, 2)
					So(summary.Successful, ShouldEqual, 1)
					So(summary.Results[0].Message, ShouldStartWith, "Execution failed: ")
					So(summary.Results[0].ExitCode, ShouldBeNil)
					So(summary.Results[1].Message, ShouldStartWith, "Execution failed: ")
				})

				Convey("An empty batch is a successful one", func() {
					summary := Run(ctx, opts, nil)
					So(summary.Total, ShouldEqual, 0)
					So(summary.Results, ShouldHaveLength, 0)
					So(summary.ExitCode(), ShouldEqual, 0)
				})
			})(c)
		},
	))
}

func TestBatchRelativeWorkspace(t *testing.T) {
	ctx := context.Background()
	Convey("Given a batch whose workspace is relative to the cwd", t, testutil.Requires(
		testutil.RequiresBinary("sh"),
		func(c C) {
			testutil.WithTmpdir(func(tmpDir string) {
				t.Chdir(tmpDir)
				opts := Options{
					WorkspaceDir: "batch-x",
					Runtime:      examples.EchoRuntime,
					Store:        fixtureStore(),
					Log:          testutil.TestLogger(c),
				}

				Convey("jobs still run their artifacts", func() {
					summary := Run(ctx, opts, []api.JobConfig{
						{Coordinate: "example:echo", Version: "1.0.0", Argv: []string{"--name", "Relative"}},
					})
					So(summary.ExitCode(), ShouldEqual, 0)
					res := summary.Results[0]
					So(res.Message, ShouldEqual, "Job completed successfully")
					So(res.ResolvedPath, ShouldStartWith, filepath.Join(tmpDir, "batch-x", "workspace", "job-0-example_echo"))
					stdout, _ := os.ReadFile(filepath.Join(tmpDir, "batch-x", "workspace", "job-0-example_echo", "stdout.log"))
					So(string(stdout), ShouldContainSubstring, "Hello, Relative!")
				})
			})(c)
		},
	))
}
