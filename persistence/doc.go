// Package persistence reads and writes VeloxDB's on-disk artifacts.
//
// Two formats are handled here:
//
//   - .fvecs vector files, delegated to package vectorstore, which maps
//     them read-only and promotes to owned memory on the first write.
//   - .ivf index files: a little-endian int32 header (cluster count K,
//     dimension D, metric code) followed by K cluster records, each a D-float
//     centroid, an int32 member count M and M int32 member ids.
//
// Manager adds atomic writes (stage, fsync, rename) through an
// internal/fs.FileSystem and snapshot directories described by a
// manifest.yaml that carries per-file sizes and CRC32C checksums.
//
// Raw slice encoding uses unsafe byte views on little-endian hosts and falls
// back to per-element encoding elsewhere.
package persistence
