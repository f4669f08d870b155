package persistence

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/veloxdb/veloxdb/index/ivf"
	"github.com/veloxdb/veloxdb/internal/fs"
	"github.com/veloxdb/veloxdb/internal/hash"
	"github.com/veloxdb/veloxdb/manifest"
	"github.com/veloxdb/veloxdb/model"
	"github.com/veloxdb/veloxdb/vectorstore"
)

const writeBufferSize = 256 * 1024

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// FileSystem used for every write and for index reads. Vector files are
	// always memory-mapped from the local file system.
	FileSystem fs.FileSystem

	// FileMode for created files. Defaults to 0644.
	FileMode os.FileMode

	// Now stamps snapshot manifests. Defaults to time.Now.
	Now func() time.Time
}

// Manager saves and loads vector files, index files and snapshot
// directories. All writes are atomic: readers see the previous file or the
// complete new one.
type Manager struct {
	fs   fs.FileSystem
	mode os.FileMode
	now  func() time.Time
}

// NewManager creates a persistence manager.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{fs: opts.FileSystem, mode: opts.FileMode, now: opts.Now}
	if m.fs == nil {
		m.fs = fs.Default
	}
	if m.mode == 0 {
		m.mode = 0o644
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// SaveStore writes s to path in .fvecs format.
func (m *Manager) SaveStore(path string, s *vectorstore.Store) (manifest.File, error) {
	return m.writeFile(path, func(w *bufio.Writer) error {
		_, err := s.WriteTo(w)
		return err
	})
}

// LoadStore memory-maps the .fvecs file at path.
func (m *Manager) LoadStore(path string) (*vectorstore.Store, error) {
	return vectorstore.Load(path)
}

// SaveIndex writes idx to path in .ivf format.
func (m *Manager) SaveIndex(path string, idx *ivf.Index) (manifest.File, error) {
	return m.writeFile(path, func(w *bufio.Writer) error {
		_, err := EncodeIndex(w, idx)
		return err
	})
}

// LoadIndex decodes the .ivf file at path.
func (m *Manager) LoadIndex(path string) (*ivf.Index, error) {
	f, err := fs.Open(m.fs, path)
	if err != nil {
		return nil, ioError("open", path, err)
	}
	defer f.Close()

	idx, err := DecodeIndex(bufio.NewReaderSize(f, writeBufferSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}

func (m *Manager) writeFile(path string, write func(*bufio.Writer) error) (manifest.File, error) {
	info := manifest.File{Name: filepath.Base(path)}
	err := fs.WriteFileAtomic(m.fs, path, m.mode, func(f fs.File) error {
		hw := hash.NewWriter(f)
		bw := bufio.NewWriterSize(hw, writeBufferSize)
		if err := write(bw); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		info.Size, info.CRC32C = hw.Size(), hw.Sum32()
		return nil
	})
	if err != nil {
		return manifest.File{}, ioError("write", path, err)
	}
	return info, nil
}

// Snapshot is the content of a snapshot directory.
type Snapshot struct {
	Manifest *manifest.Manifest
	Store    *vectorstore.Store
	Index    *ivf.Index // nil when the snapshot was taken without an index
}

// Close releases the store's mapping.
func (s *Snapshot) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}

// SaveSnapshot writes store, idx (optional) and a manifest into dir. The
// manifest goes last, so a crash leaves either the previous snapshot's
// manifest or the new one, never a manifest pointing at partial files.
func (m *Manager) SaveSnapshot(ctx context.Context, dir string, store *vectorstore.Store, idx *ivf.Index) (*manifest.Manifest, error) {
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("create", dir, err)
	}

	mf := &manifest.Manifest{
		Version:   manifest.CurrentVersion,
		ID:        uuid.NewString(),
		CreatedAt: m.now().UTC(),
		Dimension: store.Dimension(),
		Count:     store.Len(),
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vf, err := m.SaveStore(filepath.Join(dir, manifest.VectorsFile), store)
	if err != nil {
		return nil, err
	}
	mf.Files = append(mf.Files, vf)

	if idx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		xf, err := m.SaveIndex(filepath.Join(dir, manifest.IndexFile), idx)
		if err != nil {
			return nil, err
		}
		st := idx.Stats()
		mf.Files = append(mf.Files, xf)
		mf.Index = &manifest.Index{
			Metric:     idx.Metric(),
			Clusters:   idx.K(),
			Iterations: st.Iterations,
			Converged:  st.Converged,
			Reseeded:   st.Reseeded,
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := manifest.Save(m.fs, dir, mf); err != nil {
		return nil, ioError("write", filepath.Join(dir, manifest.FileName), err)
	}

	if idx == nil {
		// A stale index from an earlier snapshot is no longer referenced.
		_ = m.fs.Remove(filepath.Join(dir, manifest.IndexFile))
	}
	return mf, nil
}

// LoadSnapshot reads the snapshot in dir. Every file is checked against the
// manifest's size and checksum before it is decoded, and the index is
// validated against the store. Nothing is returned on failure.
func (m *Manager) LoadSnapshot(ctx context.Context, dir string) (*Snapshot, error) {
	mf, err := manifest.Load(m.fs, dir)
	if err != nil {
		return nil, err
	}

	for _, f := range mf.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.Verify(filepath.Join(dir, f.Name), f); err != nil {
			return nil, err
		}
	}

	store, err := m.LoadStore(filepath.Join(dir, manifest.VectorsFile))
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Manifest: mf, Store: store}

	if store.Len() != mf.Count || (mf.Count > 0 && store.Dimension() != mf.Dimension) {
		_ = snap.Close()
		return nil, model.Formatf("snapshot %s: manifest records %d x %d, file holds %d x %d",
			dir, mf.Count, mf.Dimension, store.Len(), store.Dimension())
	}

	if mf.Index != nil {
		idx, err := m.LoadIndex(filepath.Join(dir, manifest.IndexFile))
		if err == nil {
			err = idx.Validate(store.Dimension(), store.Len())
		}
		if err == nil && (idx.K() != mf.Index.Clusters || idx.Metric() != mf.Index.Metric) {
			err = model.Formatf("snapshot %s: index header disagrees with manifest", dir)
		}
		if err != nil {
			_ = snap.Close()
			return nil, err
		}
		snap.Index = idx.WithTraining(mf.Index.Iterations, mf.Index.Converged, mf.Index.Reseeded)
	}
	return snap, nil
}

// Verify checks the file at path against want's size and checksum.
func (m *Manager) Verify(path string, want manifest.File) error {
	f, err := fs.Open(m.fs, path)
	if err != nil {
		return ioError("open", path, err)
	}
	defer f.Close()

	size, sum, err := hash.Reader(bufio.NewReaderSize(f, writeBufferSize))
	if err != nil {
		return ioError("read", path, err)
	}
	if size != want.Size {
		return model.Formatf("%s: size %d, manifest records %d", path, size, want.Size)
	}
	if sum != want.CRC32C {
		return model.Formatf("%s: checksum %08x, manifest records %08x", path, sum, want.CRC32C)
	}
	return nil
}

func ioError(op, path string, err error) error {
	if errors.Is(err, model.ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", model.ErrIO, op, path, err)
}
