// Package hash provides CRC32-Castagnoli (CRC32C) checksums for snapshot
// integrity.
//
// Every file listed in a snapshot manifest carries its size and CRC32C.
// Go's crc32 package uses hardware instructions (SSE4.2, ARM CRC) when
// available.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums while writing:
//
//	cw := hash.NewWriter(f)
//	store.WriteTo(cw)
//	size, sum := cw.Size(), cw.Sum32()
package hash
