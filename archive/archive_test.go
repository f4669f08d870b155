package archive

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloxdb/veloxdb/blobstore"
	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/index/ivf"
	"github.com/veloxdb/veloxdb/internal/resource"
	"github.com/veloxdb/veloxdb/manifest"
	"github.com/veloxdb/veloxdb/model"
	"github.com/veloxdb/veloxdb/persistence"
	"github.com/veloxdb/veloxdb/vectorstore"
)

// snapshotDir writes a small indexed snapshot and returns its directory.
func snapshotDir(t *testing.T, n int) (string, *manifest.Manifest) {
	t.Helper()
	r := rand.New(rand.NewPCG(7, 11))
	s := vectorstore.New()
	v := make([]float32, 8)
	for range n {
		for j := range v {
			v[j] = r.Float32()
		}
		_, err := s.Add(v)
		require.NoError(t, err)
	}
	idx, err := ivf.Build(t.Context(), s, ivf.Config{K: 4, MaxIters: 5, Metric: distance.MetricL2, Seed: 42}, distance.NewEngine(true))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "snap")
	mf, err := persistence.NewManager(persistence.ManagerOptions{}).SaveSnapshot(t.Context(), dir, s, idx)
	require.NoError(t, err)
	return dir, mf
}

func TestArchiver_PushPull(t *testing.T) {
	for _, c := range codecs {
		t.Run(c.String(), func(t *testing.T) {
			ctx := t.Context()
			dir, mf := snapshotDir(t, 500)
			store := blobstore.NewMemoryStore()
			a := New(store, nil, Options{Codec: c, Prefix: "db/"})

			name, err := a.Push(ctx, dir, "")
			require.NoError(t, err)
			assert.Equal(t, mf.ID, name)

			keys, err := store.List(ctx, "db/"+name+"/")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{
				"db/" + name + "/" + manifest.FileName,
				"db/" + name + "/" + manifest.VectorsFile + c.Suffix(),
				"db/" + name + "/" + manifest.IndexFile + c.Suffix(),
			}, keys)

			names, err := a.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{name}, names)

			out := filepath.Join(t.TempDir(), "restored")
			latest, got, err := a.PullLatest(ctx, out)
			require.NoError(t, err)
			assert.Equal(t, name, latest)
			assert.Equal(t, mf.ID, got.ID)

			snap, err := persistence.NewManager(persistence.ManagerOptions{}).LoadSnapshot(ctx, out)
			require.NoError(t, err)
			defer snap.Close()
			assert.Equal(t, 500, snap.Store.Len())
			require.NotNil(t, snap.Index)
			assert.Equal(t, 4, snap.Index.K())
		})
	}
}

func TestArchiver_PullDetectsCodec(t *testing.T) {
	ctx := t.Context()
	dir, _ := snapshotDir(t, 50)
	store := blobstore.NewMemoryStore()

	_, err := New(store, nil, Options{Codec: CodecZstd}).Push(ctx, dir, "one")
	require.NoError(t, err)

	_, err = New(store, nil, Options{Codec: CodecLZ4}).Pull(ctx, "one", t.TempDir())
	require.NoError(t, err)
}

func TestArchiver_PushExisting(t *testing.T) {
	ctx := t.Context()
	dir, _ := snapshotDir(t, 20)
	a := New(blobstore.NewMemoryStore(), nil, Options{})

	_, err := a.Push(ctx, dir, "v1")
	require.NoError(t, err)
	_, err = a.Push(ctx, dir, "v1")
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestArchiver_PushModifiedFile(t *testing.T) {
	ctx := t.Context()
	dir, _ := snapshotDir(t, 20)
	path := filepath.Join(dir, manifest.IndexFile)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	store := blobstore.NewMemoryStore()
	a := New(store, nil, Options{Codec: CodecLZ4})
	_, err = a.Push(ctx, dir, "bad")
	assert.ErrorIs(t, err, model.ErrFormat)

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = NewBlobCatalog(store, "").Latest(ctx)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestArchiver_PullCorrupt(t *testing.T) {
	ctx := t.Context()
	dir, _ := snapshotDir(t, 20)
	store := blobstore.NewMemoryStore()
	a := New(store, nil, Options{})

	_, err := a.Push(ctx, dir, "snap")
	require.NoError(t, err)

	key := "snap/" + manifest.VectorsFile
	data, err := blobstore.ReadAll(ctx, store, key)
	require.NoError(t, err)
	data[10] ^= 0xff
	require.NoError(t, store.Put(ctx, key, data))

	out := t.TempDir()
	_, err = a.Pull(ctx, "snap", out)
	assert.ErrorIs(t, err, model.ErrFormat)

	_, err = os.Stat(filepath.Join(out, manifest.FileName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(out, manifest.VectorsFile))
	assert.True(t, os.IsNotExist(err))
}

func TestArchiver_PullMissing(t *testing.T) {
	ctx := t.Context()
	a := New(blobstore.NewMemoryStore(), nil, Options{})

	_, err := a.Pull(ctx, "nope", t.TempDir())
	assert.ErrorIs(t, err, model.ErrIO)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, _, err = a.PullLatest(ctx, t.TempDir())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestArchiver_PullMissingFile(t *testing.T) {
	ctx := t.Context()
	dir, _ := snapshotDir(t, 20)
	store := blobstore.NewMemoryStore()
	a := New(store, nil, Options{})
	_, err := a.Push(ctx, dir, "snap")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "snap/"+manifest.IndexFile))

	_, err = a.Pull(ctx, "snap", t.TempDir())
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestArchiver_Delete(t *testing.T) {
	ctx := t.Context()
	dir, _ := snapshotDir(t, 20)
	store := blobstore.NewMemoryStore()
	a := New(store, nil, Options{Codec: CodecZstd})

	for _, name := range []string{"a", "b"} {
		_, err := a.Push(ctx, dir, name)
		require.NoError(t, err)
	}
	require.NoError(t, a.Delete(ctx, "a"))

	names, err := a.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)

	keys, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	latest, err := NewBlobCatalog(store, "").Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest)
}

func TestArchiver_Throttled(t *testing.T) {
	ctx := t.Context()
	dir, _ := snapshotDir(t, 100)
	ctrl := resource.NewController(resource.Config{MaxBackgroundWorkers: 1, IOLimitBytesPerSec: 1 << 20})
	a := New(blobstore.NewLocalStore(t.TempDir()), nil, Options{Codec: CodecLZ4, Controller: ctrl})

	_, err := a.Push(ctx, dir, "snap")
	require.NoError(t, err)
	_, err = a.Pull(ctx, "snap", t.TempDir())
	require.NoError(t, err)

	assert.True(t, ctrl.TryAcquireBackground())
}

func TestArchiver_Canceled(t *testing.T) {
	dir, _ := snapshotDir(t, 20)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := New(blobstore.NewMemoryStore(), nil, Options{}).Push(ctx, dir, "snap")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, ".hidden"} {
		assert.ErrorIs(t, validName(name), model.ErrInvalidParameter, name)
	}
	assert.NoError(t, validName("2025-01-02T03-04-05"))
}

func TestBlobCatalog(t *testing.T) {
	ctx := t.Context()
	store := blobstore.NewMemoryStore()
	c := NewBlobCatalog(store, "p/")

	_, err := c.Latest(ctx)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "p/"+CurrentBlob, []byte("  \n")))
	_, err = c.Latest(ctx)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, c.Publish(ctx, "first"))
	require.NoError(t, c.Publish(ctx, "second"))
	got, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}
