// Package storage abstracts the object store holding raw document bytes.
package storage

import "context"

// ObjectStore reads and writes raw document blobs by storage key.
type ObjectStore interface {
	// Get fetches the blob stored at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores a blob at key with its content type and metadata.
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
}
