package fs

import (
	"errors"
	"os"
)

// TempSuffix is appended to the destination path while a file is written.
const TempSuffix = ".tmp"

// WriteFileAtomic writes a file through write and publishes it at path only
// once every byte has been written and synced. The data is staged in
// path+TempSuffix and renamed over path; on any failure the staging file is
// removed and path is left untouched.
func WriteFileAtomic(fsys FileSystem, path string, perm os.FileMode, write func(File) error) (err error) {
	tmp := path + TempSuffix

	f, err := fsys.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = fsys.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	return fsys.Rename(tmp, path)
}

// WriteBytesAtomic is WriteFileAtomic for an in-memory payload.
func WriteBytesAtomic(fsys FileSystem, path string, perm os.FileMode, data []byte) error {
	return WriteFileAtomic(fsys, path, perm, func(f File) error {
		n, err := f.Write(data)
		if err == nil && n < len(data) {
			err = errors.New("short write")
		}
		return err
	})
}
