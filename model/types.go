package model

import (
	"errors"
	"fmt"
	"math"
)

// ID is a dense, zero-based vector identifier. IDs equal insertion order
// and are never reused.
type ID uint32

// MaxID is the largest representable vector identifier.
const MaxID = ID(math.MaxUint32)

// String returns the decimal representation of the ID.
func (id ID) String() string {
	return fmt.Sprintf("%d", uint32(id))
}

// Result is the outcome of a nearest-neighbor query.
type Result struct {
	// ID is the identifier of the nearest vector.
	ID ID

	// Distance is the distance between the query and the result vector
	// under the requested metric.
	Distance float32

	// Cluster is the probed cluster, or -1 for an exhaustive scan.
	Cluster int

	// Scanned is the number of stored vectors compared against the query.
	Scanned int
}

var (
	// ErrOutOfRange is returned when an id is beyond the current store size.
	ErrOutOfRange = errors.New("id out of range")

	// ErrEmptyStore is returned when an operation requires at least one vector.
	ErrEmptyStore = errors.New("store is empty")

	// ErrInvalidParameter is returned for invalid arguments such as k <= 0.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrIO is returned when a file is missing, unreadable or unwritable.
	ErrIO = errors.New("i/o error")

	// ErrFormat is returned for malformed file content.
	ErrFormat = errors.New("format error")

	// ErrVersionMismatch is returned when an index file is inconsistent
	// with the store it is loaded against.
	ErrVersionMismatch = errors.New("version mismatch")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// OutOfRange returns an ErrOutOfRange wrapped with the offending id and size.
func OutOfRange(id ID, size int) error {
	return fmt.Errorf("%w: id %d, size %d", ErrOutOfRange, id, size)
}

// Formatf returns an ErrFormat wrapped with a formatted reason.
func Formatf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// InvalidParameterf returns an ErrInvalidParameter wrapped with a formatted reason.
func InvalidParameterf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// VersionMismatchf returns an ErrVersionMismatch wrapped with a formatted reason.
func VersionMismatchf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVersionMismatch, fmt.Sprintf(format, args...))
}
