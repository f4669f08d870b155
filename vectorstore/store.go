package vectorstore

import (
	"fmt"

	"github.com/veloxdb/veloxdb/internal/conv"
	"github.com/veloxdb/veloxdb/internal/mmap"
	"github.com/veloxdb/veloxdb/model"
)

// Backing identifies where a store's vectors live.
type Backing uint8

const (
	// Owned vectors live in a flattened heap slice.
	Owned Backing = iota
	// Mapped vectors are views into a read-only file mapping.
	Mapped
)

func (b Backing) String() string {
	if b == Mapped {
		return "mapped"
	}
	return "owned"
}

// Store is an append-only vector corpus.
type Store struct {
	dim     int
	n       int
	backing Backing

	// Owned: vectors[id] = data[id*dim : (id+1)*dim]
	data []float32

	// Mapped: rows[id] aliases the record payload inside m.
	rows [][]float32
	m    *mmap.Mapping
}

// New creates an empty owned store. The dimension is fixed by the first Add.
func New() *Store {
	return &Store{}
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	return s.n
}

// Dimension returns the vector dimensionality, or 0 for an empty store.
func (s *Store) Dimension() int {
	return s.dim
}

// Backing reports whether the store is owned or mapped.
func (s *Store) Backing() Backing {
	return s.backing
}

// Add appends v and returns its id.
//
// The first vector fixes the store dimension; later vectors must match it.
// A mapped store is promoted to owned memory before appending.
func (s *Store) Add(v []float32) (model.ID, error) {
	if s.n == 0 && s.dim == 0 {
		if len(v) == 0 {
			return 0, model.InvalidParameterf("vector must have at least one component")
		}
		s.dim = len(v)
	} else if len(v) != s.dim {
		return 0, &model.ErrDimensionMismatch{Expected: s.dim, Actual: len(v)}
	}

	id, err := conv.IntToUint32(s.n)
	if err != nil || model.ID(id) == model.MaxID {
		return 0, model.InvalidParameterf("store is full (%d vectors)", s.n)
	}

	if s.backing == Mapped {
		if err := s.promote(); err != nil {
			return 0, fmt.Errorf("%w: release mapping: %w", model.ErrIO, err)
		}
	}

	s.data = append(s.data, v...)
	s.n++
	return model.ID(id), nil
}

// Get returns a copy of the vector with the given id.
func (s *Store) Get(id model.ID) ([]float32, error) {
	if int64(id) >= int64(s.n) {
		return nil, model.OutOfRange(id, s.n)
	}
	row := s.Row(int(id))
	out := make([]float32, len(row))
	copy(out, row)
	return out, nil
}

// Row returns the vector at index i without copying.
// The slice aliases store memory and must not be modified; for a mapped
// store it is valid only until the next Add or Close.
// Panics if i is out of range.
func (s *Store) Row(i int) []float32 {
	if s.backing == Mapped {
		return s.rows[i]
	}
	lo := i * s.dim
	hi := lo + s.dim
	return s.data[lo:hi:hi]
}

// promote copies every mapped row into an owned buffer and releases the
// mapping.
func (s *Store) promote() error {
	data := make([]float32, s.n*s.dim, (s.n+1)*s.dim*2)
	for i, row := range s.rows {
		copy(data[i*s.dim:], row)
	}

	m := s.m
	s.data = data
	s.rows = nil
	s.m = nil
	s.backing = Owned

	return m.Close()
}

// Close releases the mapping of a mapped store. The store is empty
// afterwards.
func (s *Store) Close() error {
	m := s.m
	*s = Store{}
	if m != nil {
		return m.Close()
	}
	return nil
}
