package mock

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	. "github.com/smartystreets/goconvey/convey"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/testutil"
)

func Test(t *testing.T) {
	artifact := &api.ResolvedArtifact{
		Coordinate: api.Coordinate{"example", "mock"},
		Version:    "1.0.0",
		Digest:     digest.FromString("mock"),
	}
	cfg := api.ExecutionConfig{Arguments: map[string]string{"b": "2", "a": "1"}}

	Convey("Mock Executor sanity tests", t, testutil.WithTmpdir(func(tmpDir string) {
		Convey("Should produce results", func() {
			res, err := Executor{}.Execute(context.Background(), artifact, cfg, filepath.Join(tmpDir, "one"))
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, api.StatusSuccess)
			So(res.OutputFiles, ShouldHaveLength, 1)
			body1, _ := os.ReadFile(res.OutputFiles[0])
			So(string(body1), ShouldEqual, string(artifact.Digest)+"\na=1\nb=2\n")

			Convey("Should produce *consistent* results", func() {
				res2, err := Executor{}.Execute(context.Background(), artifact, cfg, filepath.Join(tmpDir, "two"))
				So(err, ShouldBeNil)
				body2, _ := os.ReadFile(res2.OutputFiles[0])
				So(body2, ShouldResemble, body1)
			})
		})

		Convey("Should report what it's told to", func() {
			boom := Errorf(api.ErrIsolation, "boom")
			res, err := Executor{Status: api.StatusFailure, Message: "told to", Err: boom}.Execute(context.Background(), artifact, cfg, tmpDir)
			So(err, ShouldEqual, boom)
			So(res.Status, ShouldEqual, api.StatusFailure)
			So(res.Message, ShouldEqual, "told to")
			So(res.Errors, ShouldResemble, []string{boom.Error()})
			So(res.EndTime, ShouldHappenOnOrAfter, res.StartTime)
		})
	}))
}
