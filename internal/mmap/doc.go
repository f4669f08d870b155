// Package mmap provides read-only memory-mapped file access for zero-copy
// vector loading.
//
// # Usage
//
//	m, err := mmap.Open("vectors.fvecs")
//	if err != nil { ... }
//	defer m.Close()
//
//	// Hint a validation pass over the whole file
//	m.Advise(mmap.AccessSequential)
//
//	// Zero-copy float32 view of a record payload
//	row, _ := m.Float32s(off, dim)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (Advise is a no-op)
//
// # Thread Safety
//
// A Mapping is safe for concurrent reads. Close is idempotent and protected
// by an atomic flag, but callers must ensure no goroutine still holds a view
// returned by Bytes or Float32s after Close returns.
package mmap
