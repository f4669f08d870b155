// Package archive ships snapshot directories to remote blob storage.
//
// Push compresses each file of a snapshot (see persistence.Manager.SaveSnapshot)
// with the configured Codec, uploads the files in parallel, uploads the
// manifest last and then publishes the snapshot's name in a Catalog. Pull
// reverses the process and verifies every file against the manifest before
// the local manifest is written.
//
// Remote layout:
//
//	<prefix><name>/vectors.fvecs[.lz4|.zst]
//	<prefix><name>/index.ivf[.lz4|.zst]
//	<prefix><name>/manifest.yaml
//	<prefix>CURRENT                        (BlobCatalog only)
package archive
