package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStorage defines the interface for audio object storage operations
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL for accessing an object
	GetURL(key string) string

	// PresignGetURL returns a time-limited signed URL for an object.
	// The transcription service fetches audio through these URLs, so the
	// expiry must cover the full transcription window.
	PresignGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// EnsureBucket creates the bucket if it doesn't exist
	EnsureBucket(ctx context.Context) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
