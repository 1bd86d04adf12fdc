package storage

import (
	"context"
	"io"
)

// SnapshotStore archives raw scrape payloads so a scrape can be replayed or
// inspected later without hitting the source again. Implementations must be
// safe for concurrent use.
type SnapshotStore interface {
	// Upload stores a payload under the given key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves a previously archived payload
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an archived payload
	GetURL(key string) string

	// Exists checks if a payload is already archived
	Exists(ctx context.Context, key string) (bool, error)
}
