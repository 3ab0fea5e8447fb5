// Package storage abstracts where uploaded billing files live between the
// upload request and the processing run.
package storage

import (
	"context"
	"io"
)

// Storage stores raw upload content under opaque keys. The key is persisted
// on the Upload row and is the only handle the pipeline keeps.
type Storage interface {
	// Save writes the file and returns its storage key.
	Save(ctx context.Context, userID, filename string, r io.Reader) (key string, size int64, err error)

	// Open returns the stored content for reading.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the stored content. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
}
