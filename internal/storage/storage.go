package storage

import (
	"context"
	"io"
)

// FileStorage abstracts persistence of uploaded roster files (photos, documents).
type FileStorage interface {
	// Save persists file content under dir and returns the storage path stored in the row.
	Save(ctx context.Context, dir, filename string, reader io.Reader) (storagePath string, err error)
	// Open returns a reader for the stored file.
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
	// Delete removes the file. Deleting a missing file is not an error.
	Delete(ctx context.Context, storagePath string) error
}
