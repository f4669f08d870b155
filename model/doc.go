// Package model defines the core types shared by every veloxdb package.
//
// # Identity
//
//   - ID: dense, zero-based vector identifier equal to insertion order.
//
// # Errors
//
// The error taxonomy lives here so that the storage, index and persistence
// layers can report the same inspectable values without import cycles:
//
//   - ErrDimensionMismatch: vector length disagrees with the store dimension
//   - ErrOutOfRange: id beyond the current store size
//   - ErrEmptyStore: operation requires at least one vector
//   - ErrInvalidParameter: bad argument (e.g. k <= 0 or k > corpus size)
//   - ErrIO: file missing, unreadable or unwritable
//   - ErrFormat: malformed .fvecs / .ivf / manifest content
//   - ErrVersionMismatch: index file incompatible with the loaded store
//
// Lower layers wrap these with fmt.Errorf("%w: ...") so callers can use
// errors.Is and errors.As.
package model
