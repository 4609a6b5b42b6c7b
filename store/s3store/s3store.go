/*
	An artifact store backed by an S3 bucket.

	Layout inside the bucket (under an optional prefix):

		<prefix>/<namespace>/<name>/versions              newline-separated version list
		<prefix>/<namespace>/<name>/<version>/artifact     the artifact bytes
		<prefix>/<namespace>/<name>/<version>/dependencies newline-separated coordinates (optional)

	Keys are handed in by the caller; this package never looks at the
	environment for them.
*/
package s3store

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rlmcpherson/s3gof3r"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
)

var _ api.ArtifactStore = &Store{}

/*
	Domains other than AWS's own need the region spelled out in
	`AWS_REGION`; s3gof3r can't infer it from the hostname otherwise.
	S3-compatible servers reached by IP or a bare hostname generally
	want PathStyle too.
*/
type Config struct {
	Domain    string // Defaults to "s3.amazonaws.com".
	Bucket    string
	Prefix    string
	Keys      s3gof3r.Keys
	Scheme    string // Defaults to "https".
	PathStyle bool   // Address the bucket in the path rather than the hostname.
}

type Store struct {
	cfg    Config
	s3Conf *s3gof3r.Config
}

func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, Errorf(api.ErrUsage, "s3 store needs a bucket name")
	}
	if cfg.Domain == "" {
		cfg.Domain = "s3.amazonaws.com"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	return &Store{
		cfg: cfg,
		s3Conf: &s3gof3r.Config{
			Concurrency: 10,
			PartSize:    20 * 1024 * 1024,
			NTry:        10,
			Md5Check:    false,
			Scheme:      cfg.Scheme,
			PathStyle:   cfg.PathStyle,
			Client:      s3gof3r.ClientWithTimeout(15 * time.Second),
		},
	}, nil
}

func (s *Store) bucket() *s3gof3r.Bucket {
	return s3gof3r.New(s.cfg.Domain, s.cfg.Keys).Bucket(s.cfg.Bucket)
}

func (s *Store) packagePath(coord api.Coordinate) string {
	return path.Join(s.cfg.Prefix, coord.Namespace, coord.Name)
}

func (s *Store) ListVersions(ctx context.Context, coord api.Coordinate) ([]string, error) {
	r, err := s.open(path.Join(s.packagePath(coord), "versions"))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return readLines(r)
}

func (s *Store) Resolve(ctx context.Context, coord api.Coordinate, spec api.VersionSpec) (*api.Fetched, error) {
	if spec.Kind != api.VersionExact {
		return nil, Errorf(api.ErrTransport, "s3 store only resolves exact versions, not %q", spec)
	}
	versionPath := path.Join(s.packagePath(coord), spec.Exact)

	var deps []string
	depsReader, err := s.open(path.Join(versionPath, "dependencies"))
	switch Category(err) {
	case nil:
		deps, err = readLines(depsReader)
		depsReader.Close()
		if err != nil {
			return nil, err
		}
	case api.ErrNotFound:
		// Optional.  Fine.
	default:
		return nil, err
	}

	r, err := s.open(path.Join(versionPath, "artifact"))
	if err != nil {
		return nil, err
	}
	return &api.Fetched{
		Version:      spec.Exact,
		Content:      r,
		Dependencies: deps,
	}, nil
}

func (s *Store) open(objPath string) (io.ReadCloser, error) {
	r, _, err := s.bucket().GetReader(objPath, s.s3Conf)
	if err == nil {
		return r, nil
	}
	if err2, ok := err.(*s3gof3r.RespError); ok && err2.Code == "NoSuchKey" {
		return nil, Errorf(api.ErrNotFound, "s3://%s/%s: not stored here", s.cfg.Bucket, objPath)
	}
	return nil, Errorf(api.ErrTransport, "s3://%s/%s: %s", s.cfg.Bucket, objPath, err)
}

/*
	Publish uploads an artifact and appends its version to the package's
	version list.

	The version list update is a read-modify-write; two publishers racing
	on the same package can lose a version from the list (though never
	the artifact itself).
*/
func (s *Store) Publish(ctx context.Context, coord api.Coordinate, version string, content io.Reader, deps ...string) error {
	if api.HasWildcard(version) || version == "" {
		return Errorf(api.ErrUsage, "cannot publish under version %q", version)
	}
	versionPath := path.Join(s.packagePath(coord), version)
	if err := s.put(path.Join(versionPath, "artifact"), content); err != nil {
		return err
	}
	if len(deps) > 0 {
		if err := s.put(path.Join(versionPath, "dependencies"), strings.NewReader(strings.Join(deps, "\n")+"\n")); err != nil {
			return err
		}
	}
	versions, err := s.ListVersions(ctx, coord)
	if err != nil && Category(err) != api.ErrNotFound {
		return err
	}
	for _, v := range versions {
		if v == version {
			return nil
		}
	}
	versions = append(versions, version)
	return s.put(path.Join(s.packagePath(coord), "versions"), strings.NewReader(strings.Join(versions, "\n")+"\n"))
}

func (s *Store) put(objPath string, content io.Reader) error {
	w, err := s.bucket().PutWriter(objPath, nil, s.s3Conf)
	if err != nil {
		return Errorf(api.ErrTransport, "s3://%s/%s: %s", s.cfg.Bucket, objPath, err)
	}
	if _, err := io.Copy(w, content); err != nil {
		w.Close()
		return Errorf(api.ErrTransport, "s3://%s/%s: %s", s.cfg.Bucket, objPath, err)
	}
	// Close does the real work of committing the upload; check it.
	if err := w.Close(); err != nil {
		return Errorf(api.ErrTransport, "s3://%s/%s: failed to commit: %s", s.cfg.Bucket, objPath, err)
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, Errorf(api.ErrTransport, "error reading from s3: %s", err)
	}
	var lines []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
