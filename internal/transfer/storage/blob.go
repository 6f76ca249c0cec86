package storage

import (
	"context"
	"io"
)

// BlobStore is the abstract keyed byte storage the transfer engine depends
// on. The physical backend (local disk, S3-compatible object storage) is a
// deployment concern and never leaks into the core.
type BlobStore interface {
	// Put streams a blob under key and returns a backend URL for it
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// GetRange streams the inclusive byte window [start, end] of the blob.
	// The caller owns the returned reader and must close it.
	GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)

	// Stat returns the blob size, or ErrBlobNotFound
	Stat(ctx context.Context, key string) (int64, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key string) error
}
