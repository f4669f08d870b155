package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veloxdb/veloxdb/blobstore"
	"github.com/veloxdb/veloxdb/internal/fs"
	"github.com/veloxdb/veloxdb/internal/hash"
	"github.com/veloxdb/veloxdb/internal/resource"
	"github.com/veloxdb/veloxdb/manifest"
	"github.com/veloxdb/veloxdb/model"
)

const copyBufferSize = 256 * 1024

// Options configures an Archiver.
type Options struct {
	// Codec compresses files on Push. Pull detects the codec per file.
	Codec Codec

	// Prefix is prepended to every key the archiver touches.
	Prefix string

	// Controller bounds parallel transfers and their throughput. Nil means
	// one transfer per file, unthrottled.
	Controller *resource.Controller

	// FileSystem holds the local snapshot directories. Defaults to fs.Default.
	FileSystem fs.FileSystem

	Logger *slog.Logger
}

// Archiver copies snapshot directories to and from a BlobStore.
//
// An archived snapshot lives under <prefix><name>/: one blob per data file
// (with the codec's suffix) and the manifest, uploaded last. A snapshot whose
// manifest is absent is incomplete and invisible to Pull and List.
type Archiver struct {
	store   blobstore.BlobStore
	catalog Catalog
	codec   Codec
	prefix  string
	ctrl    *resource.Controller
	fs      fs.FileSystem
	log     *slog.Logger
}

// New creates an archiver. A nil catalog stores the latest pointer in the
// blob store itself.
func New(store blobstore.BlobStore, catalog Catalog, opts Options) *Archiver {
	a := &Archiver{
		store:   store,
		catalog: catalog,
		codec:   opts.Codec,
		prefix:  opts.Prefix,
		ctrl:    opts.Controller,
		fs:      opts.FileSystem,
		log:     opts.Logger,
	}
	if a.catalog == nil {
		a.catalog = NewBlobCatalog(store, opts.Prefix)
	}
	if a.fs == nil {
		a.fs = fs.Default
	}
	if a.log == nil {
		a.log = slog.New(slog.DiscardHandler)
	}
	return a
}

// Push uploads the snapshot in dir as name and publishes it as the latest.
// An empty name uses the manifest's id. Every file is checked against the
// manifest while it streams, so a snapshot modified on disk is never
// published. Pushing over an existing archived snapshot fails with
// ErrInvalidParameter.
func (a *Archiver) Push(ctx context.Context, dir, name string) (string, error) {
	raw, err := readFile(a.fs, filepath.Join(dir, manifest.FileName))
	if err != nil {
		return "", err
	}
	mf, err := manifest.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}

	if name == "" {
		name = mf.ID
	}
	if name == "" {
		name = uuid.NewString()
	}
	if err := validName(name); err != nil {
		return "", err
	}

	base := a.prefix + name + "/"
	if b, err := a.store.Open(ctx, base+manifest.FileName); err == nil {
		_ = b.Close()
		return "", model.InvalidParameterf("archive %s already exists", name)
	} else if !errors.Is(err, blobstore.ErrNotFound) {
		return "", ioError("open", base+manifest.FileName, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range mf.Files {
		g.Go(func() error {
			return a.upload(gctx, filepath.Join(dir, f.Name), base+f.Name+a.codec.Suffix(), f)
		})
	}
	if err := g.Wait(); err != nil {
		a.discard(context.WithoutCancel(ctx), base)
		return "", err
	}

	if err := a.ctrl.AcquireIO(ctx, len(raw)); err != nil {
		return "", err
	}
	if err := a.store.Put(ctx, base+manifest.FileName, raw); err != nil {
		a.discard(context.WithoutCancel(ctx), base)
		return "", ioError("put", base+manifest.FileName, err)
	}
	if err := a.catalog.Publish(ctx, name); err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}

	a.log.Info("snapshot pushed", "name", name, "files", len(mf.Files),
		"count", mf.Count, "codec", a.codec.String())
	return name, nil
}

func (a *Archiver) upload(ctx context.Context, path, key string, want manifest.File) (err error) {
	if err := a.ctrl.AcquireBackground(ctx); err != nil {
		return err
	}
	defer a.ctrl.ReleaseBackground()

	src, err := fs.Open(a.fs, path)
	if err != nil {
		return ioError("open", path, err)
	}
	defer src.Close()

	w, err := a.store.Create(ctx, key)
	if err != nil {
		return ioError("create", key, err)
	}
	defer func() {
		if err != nil {
			_ = w.Abort()
		}
	}()

	cw, err := a.codec.NewWriter(a.ctrl.Writer(ctx, w))
	if err != nil {
		return err
	}
	hw := hash.NewWriter(cw)
	buf := make([]byte, copyBufferSize)
	if _, err = io.CopyBuffer(hw, &ctxReader{ctx: ctx, r: src}, buf); err != nil {
		return ioError("upload", key, err)
	}
	if err = cw.Close(); err != nil {
		return ioError("upload", key, err)
	}
	if hw.Size() != want.Size || hw.Sum32() != want.CRC32C {
		return model.Formatf("%s: content changed since the manifest was written", path)
	}
	if err = w.Close(); err != nil {
		return ioError("upload", key, err)
	}
	a.log.Debug("file uploaded", "key", key, "size", want.Size)
	return nil
}

// Pull downloads the archived snapshot name into dir and returns its
// manifest. Files are written atomically and verified against the manifest's
// sizes and checksums; the manifest is written last, so dir only turns into
// a loadable snapshot once every file checked out.
func (a *Archiver) Pull(ctx context.Context, name, dir string) (*manifest.Manifest, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	base := a.prefix + name + "/"

	raw, err := blobstore.ReadAll(ctx, a.store, base+manifest.FileName)
	if err != nil {
		return nil, ioError("read", base+manifest.FileName, err)
	}
	mf, err := manifest.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", name, err)
	}

	keys, err := a.store.List(ctx, base)
	if err != nil {
		return nil, ioError("list", base, err)
	}
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("create", dir, err)
	}

	type source struct {
		key   string
		codec Codec
	}
	sources := make([]source, len(mf.Files))
	for i, f := range mf.Files {
		key, codec, ok := locate(keys, base, f.Name)
		if !ok {
			return nil, model.Formatf("archive %s: missing %s", name, f.Name)
		}
		sources[i] = source{key, codec}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range mf.Files {
		g.Go(func() error {
			return a.download(gctx, sources[i].key, sources[i].codec, filepath.Join(dir, f.Name), f)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if mf.Index == nil {
		_ = a.fs.Remove(filepath.Join(dir, manifest.IndexFile))
	}
	if err := fs.WriteBytesAtomic(a.fs, filepath.Join(dir, manifest.FileName), 0o644, raw); err != nil {
		return nil, ioError("write", filepath.Join(dir, manifest.FileName), err)
	}

	a.log.Info("snapshot pulled", "name", name, "dir", dir, "files", len(mf.Files), "count", mf.Count)
	return mf, nil
}

func (a *Archiver) download(ctx context.Context, key string, codec Codec, path string, want manifest.File) error {
	if err := a.ctrl.AcquireBackground(ctx); err != nil {
		return err
	}
	defer a.ctrl.ReleaseBackground()

	blob, err := a.store.Open(ctx, key)
	if err != nil {
		return ioError("open", key, err)
	}
	defer blob.Close()

	r, err := blobstore.NewReader(ctx, blob)
	if err != nil {
		return ioError("read", key, err)
	}
	defer r.Close()

	dr, err := codec.NewReader(a.ctrl.Reader(ctx, r))
	if err != nil {
		return ioError("read", key, err)
	}
	defer dr.Close()

	err = fs.WriteFileAtomic(a.fs, path, 0o644, func(f fs.File) error {
		hw := hash.NewWriter(f)
		bw := bufio.NewWriterSize(hw, copyBufferSize)
		if _, err := io.Copy(bw, &ctxReader{ctx: ctx, r: dr}); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		if hw.Size() != want.Size || hw.Sum32() != want.CRC32C {
			return model.Formatf("%s: size %d checksum %08x, manifest records %d %08x",
				key, hw.Size(), hw.Sum32(), want.Size, want.CRC32C)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrFormat) || errors.Is(err, context.Canceled) {
			return err
		}
		return ioError("download", key, err)
	}
	a.log.Debug("file downloaded", "key", key, "size", want.Size)
	return nil
}

// PullLatest pulls the snapshot the catalog names as latest.
func (a *Archiver) PullLatest(ctx context.Context, dir string) (string, *manifest.Manifest, error) {
	name, err := a.catalog.Latest(ctx)
	if err != nil {
		return "", nil, ioError("resolve", "latest", err)
	}
	mf, err := a.Pull(ctx, name, dir)
	if err != nil {
		return "", nil, err
	}
	return name, mf, nil
}

// List returns the names of complete archived snapshots.
func (a *Archiver) List(ctx context.Context) ([]string, error) {
	keys, err := a.store.List(ctx, a.prefix)
	if err != nil {
		return nil, ioError("list", a.prefix, err)
	}
	var names []string
	for _, k := range keys {
		rest, ok := strings.CutSuffix(strings.TrimPrefix(k, a.prefix), "/"+manifest.FileName)
		if ok && rest != "" && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes an archived snapshot. The manifest goes first so readers
// never see a manifest without its files.
func (a *Archiver) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	base := a.prefix + name + "/"
	if err := a.store.Delete(ctx, base+manifest.FileName); err != nil {
		return ioError("delete", base+manifest.FileName, err)
	}
	keys, err := a.store.List(ctx, base)
	if err != nil {
		return ioError("list", base, err)
	}
	for _, k := range keys {
		if err := a.store.Delete(ctx, k); err != nil {
			return ioError("delete", k, err)
		}
	}
	return nil
}

// discard removes whatever a failed push left under base.
func (a *Archiver) discard(ctx context.Context, base string) {
	keys, err := a.store.List(ctx, base)
	if err != nil {
		a.log.Warn("cleanup failed", "prefix", base, "error", err)
		return
	}
	for _, k := range keys {
		if err := a.store.Delete(ctx, k); err != nil {
			a.log.Warn("cleanup failed", "key", k, "error", err)
		}
	}
}

func locate(keys []string, base, name string) (string, Codec, bool) {
	for _, k := range keys {
		if c, ok := codecFor(strings.TrimPrefix(k, base), name); ok {
			return k, c, true
		}
	}
	return "", 0, false
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
		return model.InvalidParameterf("invalid snapshot name %q", name)
	}
	return nil
}

func readFile(fsys fs.FileSystem, path string) ([]byte, error) {
	f, err := fs.Open(fsys, path)
	if err != nil {
		return nil, ioError("open", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, ioError("read", path, err)
	}
	return data, nil
}

func ioError(op, name string, err error) error {
	if errors.Is(err, model.ErrIO) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", model.ErrIO, op, name, err)
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
