/*
	The resolver turns a coordinate and a version spec into a concrete,
	downloaded, hashed artifact.

	It asks an `api.ArtifactStore` for the list of versions (for ranges),
	picks one, fetches it (through an optional local cache), and writes
	it into a fresh directory under the caller's workspace.
	There are no retries here: store failures come straight back.
*/
package resolver

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/inconshreveable/log15"
	"github.com/opencontainers/go-digest"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
)

type Resolver struct {
	store api.ArtifactStore
	cache *Cache // May be nil.
	log   log15.Logger
}

func New(store api.ArtifactStore, cache *Cache, log log15.Logger) *Resolver {
	if log == nil {
		log = log15.New()
		log.SetHandler(log15.DiscardHandler())
	}
	return &Resolver{store, cache, log}
}

/*
	Resolve a spec to a concrete artifact, downloaded into a new
	subdirectory of `workspaceRoot` (which is created if necessary).

	Errors are categorized `ErrNotFound`, `ErrAmbiguousVersion`, or
	`ErrTransport`; or `ErrLocalCacheProblem` if the workspace or cache
	can't be written.
*/
func (r *Resolver) Resolve(
	ctx context.Context,
	coord api.Coordinate,
	spec api.VersionSpec,
	workspaceRoot string,
) (_ *api.ResolvedArtifact, err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	log := r.log.New("coordinate", coord.String(), "spec", spec.String())

	// Pick the version.
	version, err := r.pickVersion(ctx, coord, spec)
	if err != nil {
		return nil, err
	}
	if api.HasWildcard(version) {
		return nil, Errorf(api.ErrTransport, "store answered %s with non-concrete version %q", coord, version)
	}
	log.Info("version selected", "version", version)

	// Make the workspace subdir.  It's fresh per resolution even if the
	//  content came out of the cache.  The path handed back is always
	//  absolute, since executors run things from other directories.
	workspaceRoot, err = filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "cannot locate workspace: %s", err)
	}
	if err := os.MkdirAll(workspaceRoot, 0755); err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "cannot create workspace: %s", err)
	}
	dir, err := os.MkdirTemp(workspaceRoot, "artifact-"+coord.Sanitized()+"-")
	if err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "cannot create workspace: %s", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()
	artifactPath := filepath.Join(dir, api.SanitizeName(coord.Name+"-"+version))

	// Fetch the bytes.  Either direct from the store, or via the cache.
	resolved := &api.ResolvedArtifact{
		Coordinate: coord,
		Version:    version,
		Path:       artifactPath,
	}
	fetch := func(ctx context.Context) (*api.Fetched, error) {
		fetched, err := r.store.Resolve(ctx, coord, api.Exact(version))
		if err != nil {
			return nil, storeError(err)
		}
		return fetched, nil
	}
	if r.cache == nil {
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		defer fetched.Content.Close()
		resolved.Digest, err = writeFile(artifactPath, fetched.Content, fetched.Digest)
		if err != nil {
			return nil, err
		}
		resolved.Dependencies = fetched.Dependencies
	} else {
		cachedPath, rec, err := r.cache.Get(ctx, coord, version, fetch)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(cachedPath)
		if err != nil {
			return nil, Errorf(api.ErrLocalCacheProblem, "cache entry for %s@%s unreadable: %s", coord, version, err)
		}
		defer f.Close()
		resolved.Digest, err = writeFile(artifactPath, f, rec.Digest)
		if err != nil {
			if Category(err) == api.ErrTransport {
				return nil, Errorf(api.ErrLocalCacheProblem, "cache entry for %s@%s is corrupt: %s", coord, version, err)
			}
			return nil, err
		}
		resolved.Dependencies = rec.Dependencies
	}
	if resolved.Dependencies == nil {
		resolved.Dependencies = []string{}
	}

	log.Info("artifact resolved", "version", version, "digest", resolved.Digest, "path", artifactPath)
	return resolved, nil
}

func (r *Resolver) pickVersion(ctx context.Context, coord api.Coordinate, spec api.VersionSpec) (string, error) {
	switch spec.Kind {
	case api.VersionExact:
		if spec.Exact == "" || api.HasWildcard(spec.Exact) {
			return "", Errorf(api.ErrInvalidVersionSpec, "exact version %q is not concrete", spec.Exact)
		}
		return spec.Exact, nil
	case api.VersionLatestRelease, api.VersionRangePrefix:
		versions, err := r.store.ListVersions(ctx, coord)
		if err != nil {
			return "", storeError(err)
		}
		return selectVersion(coord, spec, versions)
	default:
		return "", Errorf(api.ErrInvalidVersionSpec, "version spec is unset")
	}
}

// Stores ought to categorize their errors, but anything they don't
// claim is not-found is treated as a transport problem.
func storeError(err error) error {
	switch Category(err) {
	case api.ErrNotFound, api.ErrTransport:
		return err
	default:
		return Errorf(api.ErrTransport, "%s", err)
	}
}

func writeFile(path string, content io.Reader, expect digest.Digest) (digest.Digest, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", Errorf(api.ErrLocalCacheProblem, "cannot write artifact into workspace: %s", err)
	}
	dgst, err := copyVerified(f, content, expect)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		return "", Errorf(api.ErrLocalCacheProblem, "cannot write artifact into workspace: %s", closeErr)
	}
	return dgst, err
}
