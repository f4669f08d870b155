package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// BlobStore is a flat namespace of immutable blobs. Names may contain '/'.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a streaming write. The blob becomes visible on Close.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a whole blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a blob.
type Blob interface {
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
	// ReadAt reads len(p) bytes at off, with io.ReaderAt semantics.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange streams up to n bytes starting at off. It fails with io.EOF
	// when off is at or beyond the end.
	ReadRange(ctx context.Context, off, n int64) (io.ReadCloser, error)
}

// WritableBlob is a blob being written. Close publishes it; Abort discards
// everything written so far and is a no-op after Close.
type WritableBlob interface {
	io.WriteCloser
	Sync() error
	Abort() error
}

// Mappable is implemented by blobs backed by memory-mapped files.
type Mappable interface {
	// Bytes returns the mapped content, valid until the blob is closed.
	Bytes() ([]byte, error)
}

// NewReader streams the whole blob.
func NewReader(ctx context.Context, b Blob) (io.ReadCloser, error) {
	if b.Size() == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return b.ReadRange(ctx, 0, b.Size())
}

// ReadAll opens name and returns its content.
func ReadAll(ctx context.Context, s BlobStore, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	r, err := NewReader(ctx, b)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// rangeOf clamps [off, off+n) to a blob of the given size.
func rangeOf(size, off, n int64) (int64, int64, error) {
	if off < 0 || off >= size {
		return 0, 0, io.EOF
	}
	end := off + n
	if n < 0 || end > size {
		end = size
	}
	return off, end, nil
}
