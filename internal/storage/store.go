package storage

import (
	"context"
	"io"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store abstracts the blob operations the share lifecycle needs.
type Store interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// RemoveObject deletes key. Removing a missing object is not an error.
	RemoveObject(ctx context.Context, key string) error
	// PublicURL returns a URL a recipient can fetch key from.
	PublicURL(ctx context.Context, key string) (string, error)
}
