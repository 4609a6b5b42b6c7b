package api

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"
)

/*
	ArtifactStore is where packages come from.

	Implementations are thin adapters over some repository
	(a local directory, an S3 bucket, an OCI registry...).
	Credentials, if any, are handed to the implementation's constructor;
	nothing here reads the environment.

	Errors returned should be categorized: `ErrNotFound` when the
	coordinate or version doesn't exist, `ErrTransport` for anything else.
	Uncategorized errors are treated as `ErrTransport` by the resolver.
*/
type ArtifactStore interface {
	// Resolve fetches one version.  Stores are only ever asked for
	// `Exact` specs by the resolver; they may reject other kinds.
	Resolve(ctx context.Context, coord Coordinate, spec VersionSpec) (*Fetched, error)

	// ListVersions returns every version the store knows of, in the
	// store's own order.  The resolver does its own sorting.
	ListVersions(ctx context.Context, coord Coordinate) ([]string, error)
}

// Fetched is one artifact as handed over by a store.
// The caller must close `Content`.
type Fetched struct {
	Version      string
	Content      io.ReadCloser
	Digest       digest.Digest // Optional; if set, the resolver verifies it.
	Dependencies []string
}
