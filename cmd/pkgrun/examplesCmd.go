package main

import (
	"fmt"
	"io"
	"os"

	"github.com/inconshreveable/log15"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/examples"
	"go.polydawn.net/pkgrun/store/dirstore"
)

func ExamplesCmd(dir string, stdout io.Writer, log log15.Logger) (err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Errorf(api.ErrLocalCacheProblem, "cannot create store dir: %s", err)
	}
	store, err := dirstore.New(dir)
	if err != nil {
		return err
	}
	if err := examples.Publish(store); err != nil {
		return Errorf(api.ErrLocalCacheProblem, "cannot publish examples: %s", err)
	}
	pkgs, err := examples.Packages()
	if err != nil {
		return Errorf(api.ErrLocalCacheProblem, "cannot list examples: %s", err)
	}
	for _, pkg := range pkgs {
		log.Debug("published example", "coordinate", pkg.Coordinate.String(), "version", pkg.Version)
		fmt.Fprintf(stdout, "%s:%s\n", pkg.Coordinate, pkg.Version)
	}
	return nil
}
