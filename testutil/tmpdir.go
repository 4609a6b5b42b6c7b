package testutil

import (
	"os"
	"path/filepath"

	"github.com/smartystreets/goconvey/convey"
)

const tmpBase = "/tmp/pkgrun-test/"

/*
	Decorates a goconvey test with a fresh tmpdir, which is handed to
	the test body and removed when the convey scope resets.

	Unlike some older test helpers, this does not chdir: everything
	in pkgrun takes explicit paths.
*/
func WithTmpdir(fn func(tmpDir string)) func(c convey.C) {
	return func(c convey.C) {
		tmpDir := MakeTmpdir()
		convey.Reset(func() {
			os.RemoveAll(tmpDir)
		})
		fn(tmpDir)
	}
}

// MakeTmpdir makes a new tmpdir under the shared test base.
// The caller is responsible for removing it.
func MakeTmpdir() string {
	if err := os.MkdirAll(tmpBase, os.FileMode(0777)|os.ModeSticky); err != nil {
		panic(err)
	}
	tmpDir, err := os.MkdirTemp(tmpBase, "")
	if err != nil {
		panic(err)
	}
	tmpDir, err = filepath.Abs(tmpDir)
	if err != nil {
		panic(err)
	}
	return tmpDir
}
