package plugin

import (
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/plugin/sdk"
)

/*
	An isolatedContext is everything one plugin run owns: a private
	directory the archive is unpacked into, and a fresh interpreter
	that has only ever seen that archive's sources.

	Interpreters are never shared between runs, so nothing a plugin
	declares (package vars, init side effects) outlives its run.
	The interpreter sees the standard library and the sdk package, and
	nothing else from this process.

	Always `release` it, on every path out.
*/
type isolatedContext struct {
	dir      string
	manifest Manifest
	interp   *interp.Interpreter
}

var taskType = reflect.TypeOf(sdk.Task(nil))

func acquire(archivePath, scratchDir string, stdout, stderr io.Writer) (_ *isolatedContext, err error) {
	dir, err := os.MkdirTemp(scratchDir, "isolated-")
	if err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "cannot create isolated context: %s", err)
	}
	ic := &isolatedContext{dir: dir}
	defer func() {
		if err != nil {
			ic.release()
		}
	}()

	if err := extract(archivePath, dir); err != nil {
		return nil, err
	}
	if ic.manifest, err = readManifest(dir); err != nil {
		return nil, err
	}

	ic.interp = interp.New(interp.Options{
		Stdout: stdout,
		Stderr: stderr,
		Env:    []string{},
		Args:   []string{ic.manifest.Name},
	})
	ic.interp.Use(stdlib.Symbols)
	ic.interp.Use(sdk.Symbols)
	for _, src := range ic.manifest.Sources {
		srcPath := filepath.Join(dir, filepath.FromSlash(src))
		if _, err := os.Stat(srcPath); err != nil {
			return nil, Errorf(api.ErrIsolation, "plugin source %q listed in manifest is missing", src)
		}
		if _, err := ic.interp.EvalPath(srcPath); err != nil {
			return nil, Errorf(api.ErrIsolation, "plugin source %q does not compile: %s", src, err)
		}
	}
	return ic, nil
}

/*
	Find the first manifest entry point with the Task signature.

	Names that aren't declared, aren't functions, or have some other
	signature are passed over.
*/
func (ic *isolatedContext) entryPoint() (string, sdk.Task, error) {
	for _, name := range ic.manifest.EntryPoints {
		v, err := ic.interp.Eval(name)
		if err != nil || !v.IsValid() || v.Kind() != reflect.Func {
			continue
		}
		if !v.Type().ConvertibleTo(taskType) {
			continue
		}
		return name, v.Convert(taskType).Interface().(sdk.Task), nil
	}
	return "", nil, Errorf(api.ErrNoImplementation, "No Task implementation found in artifact")
}

// Drop the interpreter and remove the directory.  Safe to call more than once.
func (ic *isolatedContext) release() {
	ic.interp = nil
	if ic.dir != "" {
		os.RemoveAll(ic.dir)
		ic.dir = ""
	}
}
