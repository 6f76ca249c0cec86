package minio

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// PutObjectOptions represents options for uploading an object
type PutObjectOptions struct {
	// ContentType is the content type of the object
	ContentType string
	// UserMetadata is custom metadata for the object
	UserMetadata map[string]string
}

// GetObjectOptions represents options for downloading an object
type GetObjectOptions struct {
	// RangeStart and RangeEnd select an inclusive byte window. Both zero
	// means the whole object.
	RangeStart int64
	RangeEnd   int64
}

// ObjectInfo represents object metadata
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified string
}

// UploadInfo represents information about an uploaded object
type UploadInfo struct {
	Bucket   string
	Key      string
	ETag     string
	Size     int64
	Location string
}

// PutObject uploads an object to a bucket, streaming from reader
func (c *Client) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts PutObjectOptions) (UploadInfo, error) {
	if bucketName == "" || objectName == "" {
		return UploadInfo{}, WrapError("PutObject", ErrInvalidArgument, bucketName, objectName)
	}

	info, err := c.client.PutObject(ctx, bucketName, objectName, reader, objectSize, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.UserMetadata,
	})
	if err != nil {
		return UploadInfo{}, WrapError("PutObject", err, bucketName, objectName)
	}

	if c.logger != nil {
		c.logger.Info("object uploaded successfully",
			zap.String("bucket", bucketName),
			zap.String("object", objectName),
			zap.Int64("size", info.Size),
			zap.String("etag", info.ETag),
		)
	}

	return UploadInfo{
		Bucket:   info.Bucket,
		Key:      info.Key,
		ETag:     info.ETag,
		Size:     info.Size,
		Location: info.Location,
	}, nil
}

// GetObject downloads an object, optionally restricted to a byte range.
// The returned reader streams directly from the server and must be closed.
func (c *Client) GetObject(ctx context.Context, bucketName, objectName string, opts GetObjectOptions) (io.ReadCloser, error) {
	if bucketName == "" || objectName == "" {
		return nil, WrapError("GetObject", ErrInvalidArgument, bucketName, objectName)
	}

	minioOpts := minio.GetObjectOptions{}
	if opts.RangeStart != 0 || opts.RangeEnd != 0 {
		if err := minioOpts.SetRange(opts.RangeStart, opts.RangeEnd); err != nil {
			return nil, WrapError("GetObject", err, bucketName, objectName)
		}
	}

	object, err := c.client.GetObject(ctx, bucketName, objectName, minioOpts)
	if err != nil {
		return nil, WrapError("GetObject", err, bucketName, objectName)
	}

	return object, nil
}

// StatObject gets object metadata
func (c *Client) StatObject(ctx context.Context, bucketName, objectName string) (ObjectInfo, error) {
	if bucketName == "" || objectName == "" {
		return ObjectInfo{}, WrapError("StatObject", ErrInvalidArgument, bucketName, objectName)
	}

	info, err := c.client.StatObject(ctx, bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		if IsNotFound(err) {
			return ObjectInfo{}, WrapError("StatObject", ErrObjectNotFound, bucketName, objectName)
		}
		return ObjectInfo{}, WrapError("StatObject", err, bucketName, objectName)
	}

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		LastModified: info.LastModified.Format("2006-01-02 15:04:05"),
	}, nil
}

// RemoveObject removes an object from a bucket
func (c *Client) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	if bucketName == "" || objectName == "" {
		return WrapError("RemoveObject", ErrInvalidArgument, bucketName, objectName)
	}

	if err := c.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return WrapError("RemoveObject", err, bucketName, objectName)
	}

	if c.logger != nil {
		c.logger.Info("object removed",
			zap.String("bucket", bucketName),
			zap.String("object", objectName),
		)
	}

	return nil
}
