// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface, plus a DynamoDB-backed snapshot catalog.
//
// # Usage
//
//	store, err := s3.New(ctx, s3.Config{
//	    Bucket: "my-bucket",
//	    Prefix: "veloxdb/",
//	    Region: "us-east-1",
//	})
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Conditional-write catalog (DDBCatalog) for concurrent publishers
package s3
