package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/veloxdb/veloxdb/blobstore"
)

// CurrentBlob is the blob BlobCatalog keeps the latest snapshot name in.
const CurrentBlob = "CURRENT"

// Catalog records which archived snapshot is the latest.
//
// Latest fails with an error matching blobstore.ErrNotFound when nothing has
// been published.
type Catalog interface {
	Publish(ctx context.Context, name string) error
	Latest(ctx context.Context) (string, error)
}

// BlobCatalog keeps the latest name in a single blob. Publishing is a plain
// overwrite, so concurrent publishers race; use s3.DDBCatalog when several
// writers share an archive.
type BlobCatalog struct {
	store blobstore.BlobStore
	key   string
}

// NewBlobCatalog stores the pointer at prefix + CURRENT.
func NewBlobCatalog(store blobstore.BlobStore, prefix string) *BlobCatalog {
	return &BlobCatalog{store: store, key: prefix + CurrentBlob}
}

// Publish makes name the latest snapshot.
func (c *BlobCatalog) Publish(ctx context.Context, name string) error {
	return c.store.Put(ctx, c.key, []byte(name+"\n"))
}

// Latest returns the most recently published name.
func (c *BlobCatalog) Latest(ctx context.Context) (string, error) {
	data, err := blobstore.ReadAll(ctx, c.store, c.key)
	if err != nil {
		return "", err
	}
	name := string(bytes.TrimSpace(data))
	if name == "" {
		return "", fmt.Errorf("%s is empty: %w", c.key, blobstore.ErrNotFound)
	}
	return name, nil
}
