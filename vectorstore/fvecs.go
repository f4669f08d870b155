package vectorstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/veloxdb/veloxdb/internal/conv"
	"github.com/veloxdb/veloxdb/internal/mmap"
	"github.com/veloxdb/veloxdb/model"
)

// headerSize is the size of the per-record dimension prefix.
const headerSize = 4

// Load memory-maps the .fvecs file at path and returns a mapped store.
//
// Records are validated in one sequential pass and indexed by offset; vector
// payloads stay in the mapping. Fails with a format error if a record
// declares a non-positive or inconsistent dimension, or if the file ends
// mid-record. An empty file yields an empty store.
func Load(path string) (*Store, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrIO, path, err)
	}

	s, err := parseMapping(m)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return s, nil
}

func parseMapping(m *mmap.Mapping) (*Store, error) {
	_ = m.Advise(mmap.AccessSequential)

	size := m.Size()
	s := &Store{backing: Mapped, m: m}

	for off := 0; off < size; {
		if size-off < headerSize {
			return nil, model.Formatf("record %d: truncated dimension at offset %d", s.n, off)
		}
		raw, err := m.Uint32At(off)
		if err != nil {
			return nil, err
		}
		dim, err := checkDim(int32(raw), s.n, s.dim) //nolint:gosec // two's complement reinterpretation of the on-disk int32
		if err != nil {
			return nil, err
		}
		if (size-off-headerSize)/4 < dim {
			return nil, model.Formatf("record %d: truncated payload at offset %d", s.n, off)
		}

		row, err := m.Float32s(off+headerSize, dim)
		if err != nil {
			return nil, model.Formatf("record %d: %v", s.n, err)
		}
		s.rows = append(s.rows, row)
		s.dim = dim
		s.n++
		off += headerSize + 4*dim
	}

	_ = m.Advise(mmap.AccessRandom)
	return s, nil
}

// checkDim validates a record's declared dimension against the dimension
// established by earlier records (0 when none).
func checkDim(raw int32, record, want int) (int, error) {
	if raw <= 0 {
		return 0, model.Formatf("record %d: non-positive dimension %d", record, raw)
	}
	dim, err := conv.Int32ToCount(raw)
	if err != nil {
		return 0, model.Formatf("record %d: %v", record, err)
	}
	if want != 0 && dim != want {
		return 0, model.Formatf("record %d: dimension %d, expected %d", record, dim, want)
	}
	return dim, nil
}

// Decode reads .fvecs records from r into an owned store.
func Decode(r io.Reader) (*Store, error) {
	br := bufio.NewReader(r)
	s := New()

	var hdr [headerSize]byte
	var payload []byte
	var row []float32
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return s, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, model.Formatf("record %d: truncated dimension", s.n)
			}
			return nil, fmt.Errorf("%w: %w", model.ErrIO, err)
		}

		dim, err := checkDim(int32(binary.LittleEndian.Uint32(hdr[:])), s.n, s.dim) //nolint:gosec // two's complement reinterpretation of the on-disk int32
		if err != nil {
			return nil, err
		}
		if payload == nil {
			payload = make([]byte, 4*dim)
			row = make([]float32, dim)
		}

		if _, err := io.ReadFull(br, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, model.Formatf("record %d: truncated payload", s.n)
			}
			return nil, fmt.Errorf("%w: %w", model.ErrIO, err)
		}
		for i := range row {
			row[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		}
		if _, err := s.Add(row); err != nil {
			return nil, err
		}
	}
}

// WriteTo writes every vector in id order as .fvecs records.
// It works for both owned and mapped stores.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	if s.n == 0 {
		return 0, nil
	}

	dim, err := conv.IntToInt32(s.dim)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriterSize(w, 1<<16)
	buf := make([]byte, headerSize+4*s.dim)
	binary.LittleEndian.PutUint32(buf, uint32(dim)) //nolint:gosec // dim is positive

	var written int64
	for i := range s.n {
		for j, v := range s.Row(i) {
			binary.LittleEndian.PutUint32(buf[headerSize+4*j:], math.Float32bits(v))
		}
		n, err := bw.Write(buf)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	return written, bw.Flush()
}

// EncodedSize returns the size in bytes of the store's .fvecs encoding.
func (s *Store) EncodedSize() int64 {
	return int64(s.n) * int64(headerSize+4*s.dim)
}
