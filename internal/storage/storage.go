// Package storage provides the file and object storage used by the index
// builder: logical-key path allocation for derived files, advisory per-path
// locks, and object storage targets for publishing a built index.
package storage

import (
	"context"

	"github.com/arkilian/rpftiles/internal/errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New(errors.ErrCategoryStorage, errors.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = errors.New(errors.ErrCategoryStorage, errors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = errors.New(errors.ErrCategoryStorage, errors.CodeDownloadFailed, "download failed")
)

// ObjectStorage abstracts the object store a built index is published to.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Upload uploads a local file to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// UploadMultipart uploads using multipart for large files and returns
	// the ETag of the uploaded object.
	UploadMultipart(ctx context.Context, localPath, objectPath string) (string, error)

	// Download downloads objectPath to a local file, creating parent directories.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB).
	PartSize int64
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize: 5 * 1024 * 1024,
	}
}

func uploadError(objectPath string, cause error) error {
	return errors.NewStorageError(errors.CodeUploadFailed, "upload "+objectPath, cause)
}

func downloadError(objectPath string, cause error) error {
	return errors.NewStorageError(errors.CodeDownloadFailed, "download "+objectPath, cause)
}
