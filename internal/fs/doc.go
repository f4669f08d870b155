// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: Represents an open file with read/write/sync capabilities
//   - [FileSystem]: Abstracts filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Atomic Writes
//
// [WriteFileAtomic] stages data in a sibling ".tmp" file, syncs it and renames
// it over the destination, so readers see either the old or the new file.
//
//	err := fs.WriteFileAtomic(fs.Default, "index.ivf", 0o644, func(f fs.File) error {
//		return idx.Encode(f)
//	})
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("index.ivf", fs.Fault{FailAfterBytes: 16})
//
// Operations carry no context.Context; local filesystem calls are not
// interruptible at the syscall level. Remote storage lives in blobstore.
package fs
