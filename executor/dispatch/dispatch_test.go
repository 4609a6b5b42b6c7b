package executordispatch

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/executor/impl/plugin"
	"go.polydawn.net/pkgrun/executor/impl/process"
	"go.polydawn.net/pkgrun/testutil"
)

func TestDispatch(t *testing.T) {
	Convey("Modes select their executors", t, func() {
		exe, err := Get(api.ModeProcess, Config{})
		So(err, ShouldBeNil)
		So(exe, ShouldHaveSameTypeAs, &process.Executor{})
		exe, err = Get("", Config{})
		So(err, ShouldBeNil)
		So(exe, ShouldHaveSameTypeAs, &process.Executor{})
		exe, err = Get(api.ModePlugin, Config{})
		So(err, ShouldBeNil)
		So(exe, ShouldHaveSameTypeAs, &plugin.Executor{})
	})
	Convey("Unknown modes are usage errors", t, func() {
		_, err := Get("teleport", Config{})
		So(err, testutil.ShouldHaveCategory, api.ErrUsage)
	})
}
