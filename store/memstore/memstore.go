/*
	A trivial in-memory artifact store.

	Useful for tests, and as a fixture for dry runs.  Everything is kept
	as byte slices; `Resolve` hands back a fresh reader each time.
*/
package memstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
)

var _ api.ArtifactStore = &Store{}

type entry struct {
	content []byte
	deps    []string
}

type Store struct {
	mu       sync.RWMutex
	versions map[api.Coordinate][]string // in publish order
	entries  map[api.Coordinate]map[string]entry

	// Count of Resolve calls which returned content.  Tests use this to
	// check that caching and deduplication did their job.
	fetches int
}

func New() *Store {
	return &Store{
		versions: map[api.Coordinate][]string{},
		entries:  map[api.Coordinate]map[string]entry{},
	}
}

// Put publishes a version.  Putting the same version twice replaces the content.
func (s *Store) Put(coord api.Coordinate, version string, content []byte, deps ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[coord] == nil {
		s.entries[coord] = map[string]entry{}
	}
	if _, exists := s.entries[coord][version]; !exists {
		s.versions[coord] = append(s.versions[coord], version)
	}
	s.entries[coord][version] = entry{content, deps}
}

func (s *Store) ListVersions(ctx context.Context, coord api.Coordinate) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs, ok := s.versions[coord]
	if !ok {
		return nil, Errorf(api.ErrNotFound, "no package %s in store", coord)
	}
	return append([]string(nil), vs...), nil
}

func (s *Store) Resolve(ctx context.Context, coord api.Coordinate, spec api.VersionSpec) (*api.Fetched, error) {
	if spec.Kind != api.VersionExact {
		return nil, Errorf(api.ErrTransport, "memstore only resolves exact versions, not %q", spec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[coord][spec.Exact]
	if !ok {
		return nil, Errorf(api.ErrNotFound, "no version %q of %s in store", spec.Exact, coord)
	}
	s.fetches++
	return &api.Fetched{
		Version:      spec.Exact,
		Content:      io.NopCloser(bytes.NewReader(ent.content)),
		Digest:       digest.FromBytes(ent.content),
		Dependencies: append([]string(nil), ent.deps...),
	}, nil
}

// Fetches reports how many times content has been handed out.
func (s *Store) Fetches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches
}
