package dirstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/testutil"
)

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	coord := api.Coordinate{"example", "echo"}
	Convey("Given a dir store", t, testutil.WithTmpdir(func(tmpDir string) {
		store, err := New(tmpDir)
		So(err, ShouldBeNil)

		Convey("Unknown packages are not found", func() {
			_, err := store.ListVersions(ctx, coord)
			So(err, testutil.ShouldHaveCategory, api.ErrNotFound)
		})

		Convey("Published versions can be listed and fetched", func() {
			So(store.Publish(coord, "1.0.0", "echo.sh", []byte("echo hi\n"), "example:lib"), ShouldBeNil)
			So(store.Publish(coord, "1.1.0", "echo.sh", []byte("echo hey\n")), ShouldBeNil)

			versions, err := store.ListVersions(ctx, coord)
			So(err, ShouldBeNil)
			So(versions, ShouldResemble, []string{"1.0.0", "1.1.0"})

			fetched, err := store.Resolve(ctx, coord, api.Exact("1.0.0"))
			So(err, ShouldBeNil)
			defer fetched.Content.Close()
			body, _ := io.ReadAll(fetched.Content)
			So(string(body), ShouldEqual, "echo hi\n")
			So(fetched.Digest, ShouldEqual, digest.FromString("echo hi\n"))
			So(fetched.Dependencies, ShouldResemble, []string{"example:lib"})

			Convey("Missing versions are not found", func() {
				_, err := store.Resolve(ctx, coord, api.Exact("9.9.9"))
				So(err, testutil.ShouldHaveCategory, api.ErrNotFound)
			})
		})

		Convey("Names can't climb out of the store root", func() {
			outside := filepath.Join(tmpDir, "..", "escaped-"+filepath.Base(tmpDir))
			So(os.MkdirAll(outside, 0755), ShouldBeNil)
			Reset(func() { os.RemoveAll(outside) })
			So(os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0644), ShouldBeNil)
			So(store.Publish(coord, "1.0.0", "echo.sh", []byte("echo hi\n")), ShouldBeNil)

			for _, version := range []string{"../../../escaped-" + filepath.Base(tmpDir), "..", "1.0.0/../1.0.0", `1.0.0\x`} {
				_, err := store.Resolve(ctx, coord, api.Exact(version))
				So(err, testutil.ShouldHaveCategory, api.ErrNotFound)
			}
			for _, bad := range []api.Coordinate{{"..", "escaped-" + filepath.Base(tmpDir)}, {"example/..", "echo"}, {"example", "."}} {
				_, err := store.ListVersions(ctx, bad)
				So(err, testutil.ShouldHaveCategory, api.ErrNotFound)
				_, err = store.Resolve(ctx, bad, api.Exact("1.0.0"))
				So(err, testutil.ShouldHaveCategory, api.ErrNotFound)
			}
			So(store.Publish(coord, "../1.0.1", "echo.sh", []byte("x")), testutil.ShouldHaveCategory, api.ErrUsage)
			So(store.Publish(coord, "1.0.1", "../echo.sh", []byte("x")), testutil.ShouldHaveCategory, api.ErrUsage)

			Convey("... even by way of a descriptor", func() {
				dir := filepath.Join(tmpDir, "example", "echo", "3.0.0")
				So(os.MkdirAll(dir, 0755), ShouldBeNil)
				So(os.WriteFile(filepath.Join(dir, DescriptorFilename), []byte("artifact: ../../../../escaped-"+filepath.Base(tmpDir)+"/secret\n"), 0644), ShouldBeNil)
				_, err := store.Resolve(ctx, coord, api.Exact("3.0.0"))
				So(err, testutil.ShouldHaveCategory, api.ErrTransport)
			})
		})

		Convey("A version dir without descriptor uses its only file", func() {
			dir := filepath.Join(tmpDir, "example", "echo", "2.0.0")
			So(os.MkdirAll(dir, 0755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(dir, "thing.bin"), []byte("x"), 0644), ShouldBeNil)
			fetched, err := store.Resolve(ctx, coord, api.Exact("2.0.0"))
			So(err, ShouldBeNil)
			fetched.Content.Close()
			So(fetched.Digest, ShouldEqual, digest.Digest(""))

			Convey("... but refuses to guess between several", func() {
				So(os.WriteFile(filepath.Join(dir, "other.bin"), []byte("y"), 0644), ShouldBeNil)
				_, err := store.Resolve(ctx, coord, api.Exact("2.0.0"))
				So(err, testutil.ShouldHaveCategory, api.ErrTransport)
			})
		})
	}))
}
