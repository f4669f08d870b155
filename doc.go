// Package veloxdb is a single-node vector similarity engine.
//
// It stores fixed-dimension float32 vectors, optionally partitions them into
// an inverted-file (IVF) index trained with k-means, and answers
// nearest-neighbor queries under squared Euclidean or cosine distance.
//
// # Quick Start
//
//	db := veloxdb.New()
//	defer db.Close()
//
//	id, err := db.Add([]float32{1, 2, 3, 4, 5})
//	...
//	nearest, err := db.Search(ctx, query, veloxdb.MetricL2)
//
// Without an index every search scans the whole corpus and is exact. After
//
//	err := db.BuildIndex(ctx, 100, 10, veloxdb.MetricCosine)
//
// a search compares the query with the 100 centroids and then only with the
// members of the nearest cluster. Vectors added after the build are not in
// any cluster until the next build.
//
// # Persistence
//
// Vectors are stored in the .fvecs format (per record: int32 dimension, then
// the float32 components, little-endian). Loading memory-maps the file; the
// first Add after a load copies the data into owned memory.
//
//	err := db.WriteFvecs("vectors.fvecs")
//	err = db.SaveIndex("index.ivf")
//
//	fresh := veloxdb.New()
//	err = fresh.LoadFvecs("vectors.fvecs")
//	err = fresh.LoadIndex("index.ivf")
//
// SaveSnapshot and LoadSnapshot bundle both files with a manifest that
// records sizes and CRC32C checksums. The archive package ships snapshot
// directories to S3, MinIO or any other blobstore.BlobStore.
//
// # Errors
//
// Every error matches one of ErrDimensionMismatch (via errors.As),
// ErrOutOfRange, ErrEmptyStore, ErrInvalidParameter, ErrIO, ErrFormat or
// ErrVersionMismatch (via errors.Is), or a context error. Loads are atomic:
// a failing load leaves the previous vectors and index untouched.
//
// # SIMD
//
// Distances run on a vectorized kernel by default. SetSIMD(false) switches
// the instance to the scalar reference kernel; both paths agree on the
// nearest neighbor.
package veloxdb
