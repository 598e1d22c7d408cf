// Package gcs fetches statement documents from Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

var (
	// ErrTooLarge is returned when an object exceeds the fetch limit.
	ErrTooLarge = errors.New("object exceeds size limit")
	// ErrInvalidURI is returned for URIs that are not gs://bucket/object.
	ErrInvalidURI = errors.New("invalid GCS URI")
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("object not found")
)

// Fetcher returns the bytes of a document by URI. This interface enables
// mocking in the jobs worker and the CLI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURI, uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w (no object path): %s", ErrInvalidURI, uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI returns the last path element of a GCS URI, e.g.
// "gs://bucket/folder/file.pdf" gives "file.pdf".
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// StorageFetcher reads objects with a shared storage client.
type StorageFetcher struct {
	client   *storage.Client
	maxBytes int64
}

// Ensure StorageFetcher implements Fetcher.
var _ Fetcher = (*StorageFetcher)(nil)

// NewStorageFetcher creates a fetcher using Application Default Credentials.
// Objects larger than maxBytes are rejected; zero means no limit.
func NewStorageFetcher(ctx context.Context, maxBytes int64) (*StorageFetcher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStorageFetcher: creating storage client: %w", err)
	}
	return &StorageFetcher{client: client, maxBytes: maxBytes}, nil
}

// Close closes the storage client.
func (f *StorageFetcher) Close() error {
	return f.client.Close()
}

// Fetch downloads the object at uri.
func (f *StorageFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := f.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("Fetch: %s/%s: %w", bucket, object, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	return readLimited(rc, f.maxBytes)
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("Fetch: %w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
