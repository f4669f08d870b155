package veloxdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/veloxdb/veloxdb/internal/mmap"
	"github.com/veloxdb/veloxdb/model"
)

var (
	// ErrOutOfRange is returned when an id is beyond the current store size.
	ErrOutOfRange = model.ErrOutOfRange

	// ErrEmptyStore is returned when an operation requires at least one vector.
	ErrEmptyStore = model.ErrEmptyStore

	// ErrInvalidParameter is returned for invalid arguments such as K <= 0,
	// K larger than the corpus or an unknown metric name.
	ErrInvalidParameter = model.ErrInvalidParameter

	// ErrIO is returned when a file is missing, unreadable or unwritable.
	ErrIO = model.ErrIO

	// ErrFormat is returned for malformed .fvecs, .ivf or manifest content.
	ErrFormat = model.ErrFormat

	// ErrVersionMismatch is returned when an index file does not fit the
	// loaded store.
	ErrVersionMismatch = model.ErrVersionMismatch
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch = model.ErrDimensionMismatch

// translateError makes sure every error leaving the facade belongs to the
// taxonomy. Raw file system failures become ErrIO and short reads become
// ErrFormat; the cause stays reachable through errors.Unwrap.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if classified(err) {
		return err
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, mmap.ErrInvalidSize) {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}
	var pe *fs.PathError
	if errors.As(err, &pe) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrClosed) || errors.Is(err, io.ErrShortWrite) {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return err
}

func classified(err error) bool {
	var dm *ErrDimensionMismatch
	switch {
	case errors.As(err, &dm),
		errors.Is(err, ErrOutOfRange),
		errors.Is(err, ErrEmptyStore),
		errors.Is(err, ErrInvalidParameter),
		errors.Is(err, ErrIO),
		errors.Is(err, ErrFormat),
		errors.Is(err, ErrVersionMismatch),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
