/*
	An artifact store backed by an OCI registry (or anything else that
	speaks the oras target interfaces, like an on-disk OCI layout).

	Each coordinate is its own repository: `<base>/<namespace>/<name>`.
	Tags are versions.  A version's manifest has the artifact as its
	first layer, and may carry an annotation listing dependency
	coordinates, comma separated.
*/
package ocistore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	. "github.com/warpfork/go-errcat"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/errcode"

	"go.polydawn.net/pkgrun/api"
)

const (
	ArtifactType           = "application/vnd.pkgrun.package.v1"
	LayerMediaType         = "application/vnd.pkgrun.package.layer.v1"
	AnnotationDependencies = "dev.pkgrun.dependencies"
)

// Target is what the store needs from a repository:
// content storage, tagging, and tag listing.
type Target interface {
	oras.Target
	registry.TagLister
}

type Config struct {
	Repository string // Base path, e.g. "registry.example.com/pkgs".
	PlainHTTP  bool
	Credential auth.Credential // Zero value means anonymous.
}

var _ api.ArtifactStore = &Store{}

type Store struct {
	open func(coord api.Coordinate) (Target, error)
}

// New returns a store talking to a remote registry.
func New(cfg Config) (*Store, error) {
	if cfg.Repository == "" {
		return nil, Errorf(api.ErrUsage, "oci store needs a repository")
	}
	base := strings.TrimSuffix(cfg.Repository, "/")
	client := &auth.Client{
		Client: http.DefaultClient,
		Cache:  auth.NewCache(),
	}
	return &Store{func(coord api.Coordinate) (Target, error) {
		repo, err := remote.NewRepository(base + "/" + coord.Namespace + "/" + coord.Name)
		if err != nil {
			return nil, Errorf(api.ErrTransport, "invalid repository for %s: %s", coord, err)
		}
		repo.PlainHTTP = cfg.PlainHTTP
		if cfg.Credential != auth.EmptyCredential {
			c := *client
			c.Credential = auth.StaticCredential(repo.Reference.Registry, cfg.Credential)
			repo.Client = &c
		} else {
			repo.Client = client
		}
		return repo, nil
	}}, nil
}

// NewWithTargets returns a store which gets its repository for each
// coordinate from the given func.  Local OCI layouts plug in here.
func NewWithTargets(open func(coord api.Coordinate) (Target, error)) *Store {
	return &Store{open}
}

func (s *Store) ListVersions(ctx context.Context, coord api.Coordinate) ([]string, error) {
	target, err := s.open(coord)
	if err != nil {
		return nil, err
	}
	var versions []string
	err = target.Tags(ctx, "", func(tags []string) error {
		versions = append(versions, tags...)
		return nil
	})
	if err != nil {
		return nil, categorize(err, "listing versions of "+coord.String())
	}
	if len(versions) == 0 {
		return nil, Errorf(api.ErrNotFound, "no versions of %s in registry", coord)
	}
	return versions, nil
}

func (s *Store) Resolve(ctx context.Context, coord api.Coordinate, spec api.VersionSpec) (*api.Fetched, error) {
	if spec.Kind != api.VersionExact {
		return nil, Errorf(api.ErrTransport, "oci store only resolves exact versions, not %q", spec)
	}
	target, err := s.open(coord)
	if err != nil {
		return nil, err
	}
	during := "fetching " + coord.String() + ":" + spec.Exact

	// Fetch and parse the manifest.
	_, rc, err := oras.Fetch(ctx, target, spec.Exact, oras.DefaultFetchOptions)
	if err != nil {
		return nil, categorize(err, during)
	}
	manifestBytes, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, categorize(err, during)
	}
	var manifest ocispec.Manifest
	if err := api.UnmarshalJSON(manifestBytes, &manifest); err != nil {
		return nil, Errorf(api.ErrTransport, "%s: unrecognized manifest format: %s", during, err)
	}
	if len(manifest.Layers) == 0 {
		return nil, Errorf(api.ErrTransport, "%s: manifest has no layers", during)
	}

	// The first layer is the artifact.
	layer := manifest.Layers[0]
	content, err := target.Fetch(ctx, layer)
	if err != nil {
		return nil, categorize(err, during)
	}
	return &api.Fetched{
		Version:      spec.Exact,
		Content:      content,
		Digest:       layer.Digest,
		Dependencies: splitDeps(manifest.Annotations[AnnotationDependencies]),
	}, nil
}

// Publish pushes an artifact and tags it with the version.
func (s *Store) Publish(ctx context.Context, coord api.Coordinate, version string, content []byte, deps ...string) error {
	if api.HasWildcard(version) || version == "" {
		return Errorf(api.ErrUsage, "cannot publish under version %q", version)
	}
	target, err := s.open(coord)
	if err != nil {
		return err
	}
	during := "publishing " + coord.String() + ":" + version
	layerDesc, err := oras.PushBytes(ctx, target, LayerMediaType, content)
	if err != nil {
		return categorize(err, during)
	}
	packOpts := oras.PackManifestOptions{Layers: []ocispec.Descriptor{layerDesc}}
	if len(deps) > 0 {
		packOpts.ManifestAnnotations = map[string]string{AnnotationDependencies: strings.Join(deps, ",")}
	}
	manDesc, err := oras.PackManifest(ctx, target, oras.PackManifestVersion1_1, ArtifactType, packOpts)
	if err != nil {
		return categorize(err, during)
	}
	if _, err := oras.Tag(ctx, target, manDesc.Digest.String(), version); err != nil {
		return categorize(err, during)
	}
	return nil
}

func splitDeps(s string) []string {
	var deps []string
	for _, dep := range strings.Split(s, ",") {
		if dep = strings.TrimSpace(dep); dep != "" {
			deps = append(deps, dep)
		}
	}
	return deps
}

func categorize(err error, during string) error {
	if errors.Is(err, errdef.ErrNotFound) {
		return Errorf(api.ErrNotFound, "%s: %s", during, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) && errResp.StatusCode == http.StatusNotFound {
		return Errorf(api.ErrNotFound, "%s: %s", during, err)
	}
	return Errorf(api.ErrTransport, "%s: %s", during, err)
}
