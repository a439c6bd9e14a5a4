// Package storage stores snapshot objects on the local filesystem or in S3.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage holds whole objects addressed by slash-separated paths.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object, and
	// returns the object's ETag.
	Put(ctx context.Context, objectPath string, data []byte) (string, error)

	// PutIfAbsent writes data only when objectPath does not exist yet.
	// It returns ErrPreconditionFailed otherwise.
	PutIfAbsent(ctx context.Context, objectPath string, data []byte) (string, error)

	// Get reads a whole object. Missing objects return ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB).
	PartSize int64
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize: 5 * 1024 * 1024, // 5MB
	}
}
