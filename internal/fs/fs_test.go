package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	ok, err := Exists(lfs, newPath)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, lfs.Remove(newPath))
	ok, err = Exists(lfs, newPath)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.ivf")

	require.NoError(t, WriteBytesAtomic(Default, path, 0o644, []byte("first")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	// A failing writer leaves the old content and no staging file.
	boom := errors.New("boom")
	err = WriteFileAtomic(Default, path, 0o644, func(f File) error {
		_, _ = f.Write([]byte("partial"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	_, err = os.Stat(path + TempSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS(t *testing.T) {
	tests := []struct {
		name  string
		fault Fault
	}{
		{"WriteLimit", Fault{FailAfterBytes: 3}},
		{"Sync", Fault{FailAfterBytes: -1, FailOnSync: true}},
		{"Close", Fault{FailAfterBytes: -1, FailOnClose: true}},
		{"Rename", Fault{FailAfterBytes: -1, FailOnRename: true}},
		{"Open", Fault{FailAfterBytes: -1, FailOnOpen: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "vectors.fvecs")
			require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

			ffs := NewFaultyFS(nil)
			ffs.AddRule("vectors.fvecs", tt.fault)

			err := WriteBytesAtomic(ffs, path, 0o644, []byte("new content"))
			assert.ErrorIs(t, err, ErrInjected)

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "old", string(got))
			_, err = os.Stat(path + TempSuffix)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestFaultyFS_PartialWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	ffs := NewFaultyFS(LocalFS{})
	custom := errors.New("disk full")
	ffs.AddRule("data.bin", Fault{FailAfterBytes: 5, Err: custom})

	f, err := ffs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	n, err := f.Write([]byte("hel"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.Write([]byte("lo world"))
	assert.ErrorIs(t, err, custom)
	assert.Equal(t, 2, n)
	require.NoError(t, f.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	ffs.ClearRules()
	f, err = ffs.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("!"))
	assert.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFaultyFS_Delegation(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, ffs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(fpath, nil, 0o644))

	_, err := ffs.Stat(fpath)
	assert.NoError(t, err)
	assert.NoError(t, ffs.Rename(fpath, fpath+".renamed"))
	assert.NoError(t, ffs.Remove(fpath+".renamed"))

	entries, err := ffs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}
