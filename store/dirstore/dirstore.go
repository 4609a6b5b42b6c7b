/*
	An artifact store backed by a plain directory tree.

	Layout:

		<root>/<namespace>/<name>/<version>/<artifact file>
		<root>/<namespace>/<name>/<version>/descriptor.yaml   (optional)

	The descriptor names which file is the artifact, and may list
	dependency coordinates and a digest to verify against.
	Without a descriptor, the version dir must hold exactly one file.

	This works just as well over a network filesystem mount, which is
	how most CI farms end up sharing one.
*/
package dirstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/yaml.v3"

	"go.polydawn.net/pkgrun/api"
)

const DescriptorFilename = "descriptor.yaml"

var _ api.ArtifactStore = Store{}

type Store struct {
	root string
}

type Descriptor struct {
	Artifact     string        `yaml:"artifact"`
	Dependencies []string      `yaml:"dependencies,omitempty"`
	Digest       digest.Digest `yaml:"digest,omitempty"`
}

func New(root string) (Store, error) {
	stat, err := os.Stat(root)
	if err != nil {
		return Store{}, Errorf(api.ErrTransport, "dir store unavailable: %s", err)
	}
	if !stat.IsDir() {
		return Store{}, Errorf(api.ErrTransport, "dir store unavailable: %s is not a dir", root)
	}
	return Store{root}, nil
}

/*
	Whether a string can be used as one path segment under the root.
	Separators and dot-dirs would let a name wander out of the store.
*/
func isPlainName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`+"\x00")
}

// The dir for a package, or the empty string if the coordinate can't name one.
func (s Store) packageDir(coord api.Coordinate) string {
	if !isPlainName(coord.Namespace) || !isPlainName(coord.Name) {
		return ""
	}
	return filepath.Join(s.root, coord.Namespace, coord.Name)
}

func (s Store) versionDir(coord api.Coordinate, version string) string {
	pkgDir := s.packageDir(coord)
	if pkgDir == "" || !isPlainName(version) {
		return ""
	}
	return filepath.Join(pkgDir, version)
}

func (s Store) ListVersions(ctx context.Context, coord api.Coordinate) ([]string, error) {
	pkgDir := s.packageDir(coord)
	if pkgDir == "" {
		return nil, Errorf(api.ErrNotFound, "no package %s in store: not a storable name", coord)
	}
	ents, err := os.ReadDir(pkgDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Errorf(api.ErrNotFound, "no package %s in store", coord)
		}
		return nil, Errorf(api.ErrTransport, "cannot list versions of %s: %s", coord, err)
	}
	versions := make([]string, 0, len(ents))
	for _, ent := range ents {
		if ent.IsDir() {
			versions = append(versions, ent.Name())
		}
	}
	return versions, nil
}

func (s Store) Resolve(ctx context.Context, coord api.Coordinate, spec api.VersionSpec) (*api.Fetched, error) {
	if spec.Kind != api.VersionExact {
		return nil, Errorf(api.ErrTransport, "dirstore only resolves exact versions, not %q", spec)
	}
	versionDir := s.versionDir(coord, spec.Exact)
	if versionDir == "" {
		return nil, Errorf(api.ErrNotFound, "no version %q of %s in store: not a storable name", spec.Exact, coord)
	}
	desc, err := s.loadDescriptor(versionDir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(versionDir, desc.Artifact))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Errorf(api.ErrNotFound, "version %q of %s names missing artifact %q", spec.Exact, coord, desc.Artifact)
		}
		return nil, Errorf(api.ErrTransport, "cannot read artifact: %s", err)
	}
	return &api.Fetched{
		Version:      spec.Exact,
		Content:      f,
		Digest:       desc.Digest,
		Dependencies: desc.Dependencies,
	}, nil
}

func (s Store) loadDescriptor(versionDir string) (Descriptor, error) {
	var desc Descriptor
	bs, err := os.ReadFile(filepath.Join(versionDir, DescriptorFilename))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(bs, &desc); err != nil {
			return desc, Errorf(api.ErrTransport, "invalid descriptor in %s: %s", versionDir, err)
		}
		if desc.Artifact == "" {
			return desc, Errorf(api.ErrTransport, "invalid descriptor in %s: no artifact named", versionDir)
		}
		if !isPlainName(desc.Artifact) {
			return desc, Errorf(api.ErrTransport, "invalid descriptor in %s: artifact %q is outside the version dir", versionDir, desc.Artifact)
		}
		return desc, nil
	case os.IsNotExist(err):
		// Fall through to guessing.
	default:
		return desc, Errorf(api.ErrTransport, "cannot read descriptor: %s", err)
	}

	// No descriptor: the version dir must hold exactly one file.
	ents, err := os.ReadDir(versionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return desc, Errorf(api.ErrNotFound, "no such version: %s", filepath.Base(versionDir))
		}
		return desc, Errorf(api.ErrTransport, "cannot read version dir: %s", err)
	}
	var files []string
	for _, ent := range ents {
		if ent.Type().IsRegular() {
			files = append(files, ent.Name())
		}
	}
	switch len(files) {
	case 0:
		return desc, Errorf(api.ErrNotFound, "version dir %s holds no artifact", versionDir)
	case 1:
		desc.Artifact = files[0]
		return desc, nil
	default:
		sort.Strings(files)
		return desc, Errorf(api.ErrTransport, "version dir %s holds several files %v and no %s to pick one", versionDir, files, DescriptorFilename)
	}
}

/*
	Publish places an artifact into the store, writing a descriptor
	which records its digest and dependencies.

	Publishing is not atomic against concurrent readers of the same
	version: it's meant for seeding stores, not serving as a registry.
*/
func (s Store) Publish(coord api.Coordinate, version string, filename string, content []byte, deps ...string) error {
	if api.HasWildcard(version) || version == "" {
		return Errorf(api.ErrUsage, "cannot publish under version %q", version)
	}
	versionDir := s.versionDir(coord, version)
	if versionDir == "" || !isPlainName(filename) {
		return Errorf(api.ErrUsage, "cannot publish %s %q as %q: not storable names", coord, version, filename)
	}
	if err := os.MkdirAll(versionDir, 0755); err != nil {
		return Errorf(api.ErrTransport, "cannot publish: %s", err)
	}
	if err := os.WriteFile(filepath.Join(versionDir, filename), content, 0644); err != nil {
		return Errorf(api.ErrTransport, "cannot publish: %s", err)
	}
	bs, err := yaml.Marshal(Descriptor{
		Artifact:     filename,
		Dependencies: deps,
		Digest:       digest.FromBytes(content),
	})
	if err != nil {
		return Errorf(api.ErrTransport, "cannot publish: %s", err)
	}
	if err := os.WriteFile(filepath.Join(versionDir, DescriptorFilename), bs, 0644); err != nil {
		return Errorf(api.ErrTransport, "cannot publish: %s", err)
	}
	return nil
}
