// Package archive stores capture files in object storage so replay hosts
// can pull traces they did not record themselves.
package archive

import (
	"context"
	"errors"
)

// Common errors for archive operations.
var (
	ErrObjectNotFound = errors.New("archive object not found")
	ErrPushFailed     = errors.New("capture push failed")
	ErrPullFailed     = errors.New("capture pull failed")
	ErrRemoveFailed   = errors.New("capture remove failed")
)

// Archive abstracts the capture store. Implementations include S3 and the
// local filesystem for testing.
type Archive interface {
	// Push uploads a capture file under the given key and returns the
	// store's checksum for the object. Large files are uploaded in parts.
	Push(ctx context.Context, localPath, key string) (string, error)

	// Pull downloads the object at key to localPath.
	Pull(ctx context.Context, key, localPath string) error

	// Exists reports whether an object is present under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Remove deletes the object at key. Removing a missing object is not
	// an error.
	Remove(ctx context.Context, key string) error

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// CaptureKey returns the canonical archive key for a trace's capture file.
func CaptureKey(traceID string) string {
	return "captures/" + traceID + ".gfxcap"
}

// PartUploadConfig holds settings for multipart pushes.
type PartUploadConfig struct {
	// PartSize is the size of each part in bytes. Pushes below this size
	// use a single request.
	PartSize int64
	// Concurrency is the number of concurrent part uploads.
	Concurrency int
}

// DefaultPartUploadConfig returns the default multipart settings.
func DefaultPartUploadConfig() PartUploadConfig {
	return PartUploadConfig{
		PartSize:    8 * 1024 * 1024, // 8MB
		Concurrency: 4,
	}
}
