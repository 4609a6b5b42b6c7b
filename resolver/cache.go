package resolver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/inconshreveable/log15"
	"github.com/opencontainers/go-digest"
	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	"github.com/polydawn/refmt/obj/atlas"
	. "github.com/warpfork/go-errcat"
	"golang.org/x/sync/singleflight"

	"go.polydawn.net/pkgrun/api"
)

/*
	Cache keeps downloaded artifacts on local disk, keyed by
	(coordinate, concrete version).

	Lookups are safe from any number of goroutines.  When several callers
	miss on the same key at once, exactly one of them downloads and the
	rest wait for (and share) its result.

	Layout:

		<dir>/committed/<ns>/<name>/<version>-<keyhash>/artifact
		<dir>/committed/<ns>/<name>/<version>-<keyhash>/record.json
		<dir>/stg/...                                                (in-flight downloads)

	The path segments are sanitized for readability; the key hash keeps
	coordinates that sanitize alike apart, and the record names its own
	coordinate so a mismatched entry is never served.

	An entry is only visible once its record is written, and the record
	is written after the artifact is renamed into place, so a crash
	mid-download leaves nothing half-committed.

	Downloads are shared, so they run detached from any one caller's
	cancellation; a caller that gives up just stops waiting.

	Entries are never evicted.
*/
type Cache struct {
	dir    string
	log    log15.Logger
	flight singleflight.Group

	mu    sync.RWMutex
	known map[cacheKey]cacheRecord
}

type cacheKey struct {
	coord   api.Coordinate
	version string
}

func (k cacheKey) String() string {
	return k.coord.String() + "@" + k.version
}

func (k cacheKey) hash() string {
	return digest.FromString(k.coord.Namespace + "\x00" + k.coord.Name + "\x00" + k.version).Encoded()[:16]
}

type cacheRecord struct {
	Coordinate   string
	Version      string
	Digest       digest.Digest
	Dependencies []string
}

var cacheAtlas = atlas.MustBuild(
	atlas.BuildEntry(cacheRecord{}).StructMap().
		AddField("Coordinate", atlas.StructMapEntry{SerialName: "coordinate"}).
		AddField("Version", atlas.StructMapEntry{SerialName: "version"}).
		AddField("Digest", atlas.StructMapEntry{SerialName: "digest"}).
		AddField("Dependencies", atlas.StructMapEntry{SerialName: "dependencies"}).
		Complete(),
	atlas.BuildEntry(digest.Digest("")).Transform().
		TransformMarshal(atlas.MakeMarshalTransformFunc(
			func(x digest.Digest) (string, error) {
				return string(x), nil
			})).
		TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
			func(x string) (digest.Digest, error) {
				return digest.Parse(x)
			})).
		Complete(),
)

func NewCache(dir string, log log15.Logger) (*Cache, error) {
	if log == nil {
		log = log15.New()
		log.SetHandler(log15.DiscardHandler())
	}
	for _, sub := range []string{"committed", "stg"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, Errorf(api.ErrLocalCacheProblem, "unable to create cache dirs: %s", err)
		}
	}
	return &Cache{
		dir:   dir,
		log:   log,
		known: map[cacheKey]cacheRecord{},
	}, nil
}

func (c *Cache) entryDir(k cacheKey) string {
	return filepath.Join(c.dir, "committed",
		api.SanitizeName(k.coord.Namespace),
		api.SanitizeName(k.coord.Name),
		api.SanitizeName(k.version)+"-"+k.hash(),
	)
}

/*
	Get returns the path of the cached artifact for the key, calling
	`fetch` to download it if it isn't cached yet.

	The returned path must be treated as read-only.
*/
func (c *Cache) Get(
	ctx context.Context,
	coord api.Coordinate,
	version string,
	fetch func(ctx context.Context) (*api.Fetched, error),
) (string, cacheRecord, error) {
	k := cacheKey{coord, version}
	artifactPath := filepath.Join(c.entryDir(k), "artifact")

	// Fast path: something we've already seen this process.
	c.mu.RLock()
	rec, ok := c.known[k]
	c.mu.RUnlock()
	if ok {
		return artifactPath, rec, nil
	}

	// Slow path: one caller per key goes to disk and, failing that, the store.
	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(k.String(), func() (interface{}, error) {
		rec, err := c.loadRecord(k)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			rec, err = c.fill(detached, k, fetch)
			if err != nil {
				return nil, err
			}
		} else {
			c.log.Debug("artifact cache hit on disk", "key", k.String())
		}
		c.mu.Lock()
		c.known[k] = *rec
		c.mu.Unlock()
		return *rec, nil
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", cacheRecord{}, Errorf(api.ErrTransport, "gave up waiting for %s: %s", k, ctx.Err())
	}
	if res.Err != nil {
		return "", cacheRecord{}, res.Err
	}
	if res.Shared {
		c.log.Debug("artifact download shared", "key", k.String())
	}
	return artifactPath, res.Val.(cacheRecord), nil
}

func (c *Cache) fill(ctx context.Context, k cacheKey, fetch func(ctx context.Context) (*api.Fetched, error)) (*cacheRecord, error) {
	c.log.Info("artifact cache miss; downloading", "key", k.String())
	fetched, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	defer fetched.Content.Close()

	// Download into staging, then move into place.
	stg, err := os.CreateTemp(filepath.Join(c.dir, "stg"), "dl-")
	if err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "cannot stage download: %s", err)
	}
	defer os.Remove(stg.Name())
	dgst, err := copyVerified(stg, fetched.Content, fetched.Digest)
	if closeErr := stg.Close(); err == nil && closeErr != nil {
		err = Errorf(api.ErrLocalCacheProblem, "cannot stage download: %s", closeErr)
	}
	if err != nil {
		return nil, err
	}
	entryDir := c.entryDir(k)
	if err := os.MkdirAll(entryDir, 0755); err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "cannot commit download: %s", err)
	}
	if err := os.Rename(stg.Name(), filepath.Join(entryDir, "artifact")); err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "cannot commit download: %s", err)
	}
	rec := &cacheRecord{
		Coordinate:   k.coord.String(),
		Version:      k.version,
		Digest:       dgst,
		Dependencies: fetched.Dependencies,
	}
	if err := c.saveRecord(k, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

/*
	Attempt to load the record for a key.

	If it doesn't exist, or belongs to some other key, returns nil nil.
*/
func (c *Cache) loadRecord(k cacheKey) (*cacheRecord, error) {
	f, err := os.Open(filepath.Join(c.entryDir(k), "record.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, Errorf(api.ErrLocalCacheProblem, "error reading cache: %s", err)
	}
	defer f.Close()
	var rec cacheRecord
	if err := refmt.NewUnmarshallerAtlased(json.DecodeOptions{}, f, cacheAtlas).Unmarshal(&rec); err != nil {
		return nil, Errorf(api.ErrLocalCacheProblem, "error parsing cache record for %s: %s", k, err)
	}
	if rec.Coordinate != k.coord.String() || rec.Version != k.version {
		c.log.Warn("cache entry belongs to another artifact; replacing it", "key", k.String(), "found", rec.Coordinate+"@"+rec.Version)
		return nil, nil
	}
	return &rec, nil
}

func (c *Cache) saveRecord(k cacheKey, rec *cacheRecord) error {
	tmpPath := filepath.Join(c.entryDir(k), ".record.json.tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return Errorf(api.ErrLocalCacheProblem, "could not save cache record: %s", err)
	}
	if err := refmt.NewMarshallerAtlased(json.EncodeOptions{}, f, cacheAtlas).Marshal(rec); err != nil {
		f.Close()
		return Errorf(api.ErrLocalCacheProblem, "could not save cache record: %s", err)
	}
	if err := f.Close(); err != nil {
		return Errorf(api.ErrLocalCacheProblem, "could not save cache record: %s", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(c.entryDir(k), "record.json")); err != nil {
		return Errorf(api.ErrLocalCacheProblem, "could not save cache record: %s", err)
	}
	return nil
}

/*
	Copy from r to w, hashing as we go.

	If `expect` is set, a mismatch is an `ErrTransport` error.
	Errors reading are transport errors; errors writing are local.
*/
func copyVerified(w io.Writer, r io.Reader, expect digest.Digest) (digest.Digest, error) {
	digester := digest.Canonical.Digester()
	hr := &hashingReader{r: r, hash: digester.Hash()}
	if _, err := io.Copy(w, hr); err != nil {
		if hr.err != nil {
			return "", Errorf(api.ErrTransport, "error reading artifact: %s", hr.err)
		}
		return "", Errorf(api.ErrLocalCacheProblem, "error writing artifact: %s", err)
	}
	got := digester.Digest()
	if expect != "" && expect != got {
		return "", Errorf(api.ErrTransport, "artifact failed integrity check: store says %s, content hashes to %s", expect, got)
	}
	return got, nil
}

/*
	Proxies a reader, hashing the stream as it's read, and remembering
	whether a failure came from the read side.
	(io.Copy doesn't tell you which side of the copy broke.)
*/
type hashingReader struct {
	r    io.Reader
	hash io.Writer
	err  error
}

func (hr *hashingReader) Read(b []byte) (int, error) {
	n, err := hr.r.Read(b)
	hr.hash.Write(b[:n])
	if err != nil && err != io.EOF {
		hr.err = err
	}
	return n, err
}
