package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	pkgminio "github.com/lk2023060901/fileshare-backend/internal/pkg/minio"
)

// ErrBlobNotFound indicates the requested blob does not exist
var ErrBlobNotFound = errors.New("storage: blob not found")

// MinIOStore is the object-storage BlobStore implementation
type MinIOStore struct {
	client *pkgminio.Client
	bucket string
}

// NewMinIOStore creates a MinIO-backed blob store
func NewMinIOStore(client *pkgminio.Client, bucket string) *MinIOStore {
	return &MinIOStore{
		client: client,
		bucket: bucket,
	}
}

// Put streams a blob into the configured bucket
func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.client.EnsureBucket(ctx, s.bucket); err != nil {
		return "", fmt.Errorf("failed to ensure bucket: %w", err)
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, pkgminio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}

	if info.Location != "" {
		return info.Location, nil
	}
	return fmt.Sprintf("/%s/%s", s.bucket, key), nil
}

// GetRange streams the requested byte window of the blob
func (s *MinIOStore) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	rc, err := s.client.GetObject(ctx, s.bucket, key, pkgminio.GetObjectOptions{
		RangeStart: start,
		RangeEnd:   end,
	})
	if err != nil {
		if pkgminio.IsNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return rc, nil
}

// Stat returns the blob size
func (s *MinIOStore) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key)
	if err != nil {
		if pkgminio.IsNotFound(err) {
			return 0, ErrBlobNotFound
		}
		return 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Size, nil
}

// Delete removes the blob from the bucket
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key); err != nil {
		if pkgminio.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
