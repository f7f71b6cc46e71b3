package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore is an ObjectStore backed by a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS-backed object store for the given bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: empty bucket name")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: new client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Get fetches the blob stored at key.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, errOpen := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errOpen != nil {
		return nil, fmt.Errorf("storage: open %s: %w", key, errOpen)
	}
	defer reader.Close()

	data, errRead := io.ReadAll(reader)
	if errRead != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, errRead)
	}
	return data, nil
}

// Put stores a blob at key only if the object does not already exist;
// an existing object is left untouched so re-submitted uploads stay
// idempotent.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	writer := s.client.Bucket(s.bucket).Object(key).
		If(storage.Conditions{DoesNotExist: true}).
		NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata

	if _, errWrite := writer.Write(data); errWrite != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: write %s: %w", key, errWrite)
	}
	if errClose := writer.Close(); errClose != nil {
		var apiErr *googleapi.Error
		if errors.As(errClose, &apiErr) && apiErr.Code == 412 {
			// Object already exists.
			return nil
		}
		return fmt.Errorf("storage: finalize %s: %w", key, errClose)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
