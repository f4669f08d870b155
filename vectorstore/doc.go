// Package vectorstore holds the corpus: an append-only sequence of
// fixed-dimension float32 vectors addressed by dense ids.
//
// A Store is backed either by owned heap memory (vectors added at runtime)
// or by a read-only memory-mapped .fvecs file (vectors loaded from disk).
// The first Add after a load copies the mapped rows into an owned buffer and
// releases the mapping; readers never observe the difference.
//
// # .fvecs format
//
// A sequence of records, each a little-endian int32 dimension followed by
// that many little-endian IEEE-754 float32 values. All records in a file
// share the same dimension. There is no file header.
//
// Thread safety: concurrent reads are safe; writes require external
// synchronization.
package vectorstore
