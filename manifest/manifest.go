// Package manifest describes a snapshot directory: which files it holds,
// how large they are, their checksums, and the shape of the data inside.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/internal/fs"
	"github.com/veloxdb/veloxdb/model"
)

const (
	// FileName is the manifest's name inside a snapshot directory.
	FileName = "manifest.yaml"

	// VectorsFile and IndexFile are the data files of a snapshot.
	VectorsFile = "vectors.fvecs"
	IndexFile   = "index.ivf"

	CurrentVersion = 1
)

// Manifest describes the state of a snapshot.
type Manifest struct {
	Version   int       `yaml:"version"`
	ID        string    `yaml:"id"`
	CreatedAt time.Time `yaml:"created_at"`
	Dimension int       `yaml:"dimension"`
	Count     int       `yaml:"count"`
	Index     *Index    `yaml:"index,omitempty"`
	Files     []File    `yaml:"files"`
}

// Index describes the IVF index stored next to the vectors.
type Index struct {
	Metric     distance.Metric `yaml:"metric"`
	Clusters   int             `yaml:"clusters"`
	Iterations int             `yaml:"iterations"`
	Converged  bool            `yaml:"converged"`
	Reseeded   int             `yaml:"reseeded,omitempty"`
}

// File is one data file of a snapshot, relative to the snapshot directory.
type File struct {
	Name   string `yaml:"name"`
	Size   int64  `yaml:"size"`
	CRC32C uint32 `yaml:"crc32c"`
}

// File returns the entry called name.
func (m *Manifest) File(name string) (File, bool) {
	for _, f := range m.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// Validate checks internal consistency.
func (m *Manifest) Validate() error {
	if m.Version != CurrentVersion {
		return model.VersionMismatchf("manifest version %d, expected %d", m.Version, CurrentVersion)
	}
	if m.Count < 0 || m.Dimension < 0 || (m.Count > 0) != (m.Dimension > 0) {
		return model.Formatf("manifest: count %d with dimension %d", m.Count, m.Dimension)
	}
	if _, ok := m.File(VectorsFile); !ok {
		return model.Formatf("manifest: missing %s", VectorsFile)
	}
	_, hasIndex := m.File(IndexFile)
	if hasIndex != (m.Index != nil) {
		return model.Formatf("manifest: index section and %s disagree", IndexFile)
	}
	seen := make(map[string]struct{}, len(m.Files))
	for _, f := range m.Files {
		if f.Name == "" || f.Name == "." || f.Name == ".." || f.Name != filepath.Base(f.Name) {
			return model.Formatf("manifest: invalid file name %q", f.Name)
		}
		if f.Size < 0 {
			return model.Formatf("manifest: %s has negative size", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return model.Formatf("manifest: duplicate file %s", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Encode writes m as YAML.
func Encode(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

// Decode parses and validates a manifest. Unknown fields are rejected.
func Decode(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, model.Formatf("manifest: empty document")
		}
		return nil, model.Formatf("manifest: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads dir/manifest.yaml.
func Load(fsys fs.FileSystem, dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	f, err := fs.Open(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrIO, path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Save atomically writes dir/manifest.yaml and syncs the directory so the
// rename survives a crash.
func Save(fsys fs.FileSystem, dir string, m *Manifest) error {
	if m.Version == 0 {
		m.Version = CurrentVersion
	}
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return err
	}
	if err := fs.WriteBytesAtomic(fsys, filepath.Join(dir, FileName), 0o644, buf.Bytes()); err != nil {
		return err
	}
	return syncDir(fsys, dir)
}

func syncDir(fsys fs.FileSystem, dir string) error {
	f, err := fsys.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
