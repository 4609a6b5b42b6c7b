package plugin

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/yaml.v3"

	"go.polydawn.net/pkgrun/api"
)

// ManifestName is the file every plugin archive carries at its root.
const ManifestName = "pkgrun.yaml"

// DefaultEntryPoint is looked for when a manifest names none.
const DefaultEntryPoint = "Execute"

/*
	Manifest describes a plugin archive:

		name: echo
		entryPoints: [Execute]
		sources: [echo.go, util.go]

	Entry points are tried in order.  Sources are evaluated in order;
	if none are listed, every '.go' file at the archive root is, sorted.
*/
type Manifest struct {
	Name        string   `yaml:"name"`
	EntryPoints []string `yaml:"entryPoints"`
	Sources     []string `yaml:"sources"`
}

func readManifest(dir string) (Manifest, error) {
	var m Manifest
	f, err := os.Open(filepath.Join(dir, ManifestName))
	if err != nil {
		return m, Errorf(api.ErrIsolation, "plugin archive has no %s: %s", ManifestName, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return m, Errorf(api.ErrIsolation, "malformed %s: %s", ManifestName, err)
	}
	if len(m.EntryPoints) == 0 {
		m.EntryPoints = []string{DefaultEntryPoint}
	}
	if len(m.Sources) == 0 {
		m.Sources, err = rootSources(dir)
		if err != nil {
			return m, err
		}
	}
	for _, src := range m.Sources {
		clean := path.Clean(src)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return m, Errorf(api.ErrIsolation, "malformed %s: source %q escapes the archive", ManifestName, src)
		}
		if path.Ext(clean) != ".go" {
			return m, Errorf(api.ErrIsolation, "malformed %s: source %q is not a .go file", ManifestName, src)
		}
	}
	return m, nil
}

func rootSources(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "cannot list plugin sources: %s", err)
	}
	var sources []string
	for _, ent := range ents {
		if !ent.IsDir() && filepath.Ext(ent.Name()) == ".go" {
			sources = append(sources, ent.Name())
		}
	}
	if len(sources) == 0 {
		return nil, Errorf(api.ErrIsolation, "plugin archive has no Go sources")
	}
	sort.Strings(sources)
	return sources, nil
}
