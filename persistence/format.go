package persistence

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/index/ivf"
	"github.com/veloxdb/veloxdb/internal/conv"
	"github.com/veloxdb/veloxdb/model"
)

const (
	// IndexHeaderSize is the size of the .ivf header: K, D and metric code.
	IndexHeaderSize = 12

	// idChunk bounds the allocation made for a single member-count field
	// before the ids behind it have actually been read.
	idChunk = 1 << 16
)

// IndexHeader is the fixed .ivf header.
type IndexHeader struct {
	Clusters  int32
	Dimension int32
	Metric    int32
}

// EncodeIndex writes idx in .ivf format and returns the number of bytes
// written. Member ids are written in ascending order.
func EncodeIndex(w io.Writer, idx *ivf.Index) (int64, error) {
	bw := NewBinaryWriter(w)

	k, err := conv.IntToInt32(idx.K())
	if err != nil {
		return 0, err
	}
	d, err := conv.IntToInt32(idx.Dimension())
	if err != nil {
		return 0, err
	}
	for _, v := range []int32{k, d, idx.Metric().Code()} {
		if err := bw.WriteInt32(v); err != nil {
			return bw.Written(), err
		}
	}

	buf := make([]uint32, 0, idChunk)
	for j := range idx.K() {
		if err := bw.WriteFloat32Slice(idx.Centroid(j)); err != nil {
			return bw.Written(), err
		}
		m, err := conv.IntToInt32(idx.Size(j))
		if err != nil {
			return bw.Written(), err
		}
		if err := bw.WriteInt32(m); err != nil {
			return bw.Written(), err
		}

		it := idx.Members(j).ManyIterator()
		for {
			n := it.NextMany(buf[:cap(buf)])
			if n == 0 {
				break
			}
			if err := bw.WriteUint32Slice(buf[:n]); err != nil {
				return bw.Written(), err
			}
		}
	}
	return bw.Written(), nil
}

// DecodeIndex reads an .ivf stream. The whole stream must be consumed:
// truncation, trailing bytes, a non-positive K or D, an unknown metric code,
// a negative member count or id, and duplicate membership all fail with a
// format error. Consistency with a particular store is not checked here; see
// ivf.Index.Validate.
func DecodeIndex(r io.Reader) (*ivf.Index, error) {
	br := NewBinaryReader(r)

	hdr, err := readIndexHeader(br)
	if err != nil {
		return nil, err
	}
	metric, err := distance.FromCode(hdr.Metric)
	if err != nil {
		return nil, err
	}
	k, dim := int(hdr.Clusters), int(hdr.Dimension)

	// Grown as bytes arrive so a lying K or D cannot force a huge allocation
	// up front.
	centroids := make([]float32, 0, min(dim, idChunk))
	members := make([][]uint32, 0, min(k, idChunk))
	for j := range k {
		centroids, err = readFloats(br, centroids, dim)
		if err != nil {
			return nil, truncated(err, "cluster %d centroid", j)
		}

		m, err := br.ReadInt32()
		if err != nil {
			return nil, truncated(err, "cluster %d member count", j)
		}
		if m < 0 {
			return nil, model.Formatf("cluster %d: negative member count %d", j, m)
		}

		ids, err := readIDs(br, int(m))
		if err != nil {
			return nil, truncated(err, "cluster %d members", j)
		}
		for _, id := range ids {
			if id > math.MaxInt32 {
				return nil, model.Formatf("cluster %d: negative member id %d", j, int32(id)) //nolint:gosec // reinterpretation for the message
			}
		}
		members = append(members, ids)
	}

	eof, err := br.AtEOF()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	if !eof {
		return nil, model.Formatf("trailing bytes at offset %d after %d clusters", br.Consumed()-1, k)
	}

	return ivf.New(metric, dim, centroids, members)
}

func readIndexHeader(br *BinaryReader) (IndexHeader, error) {
	var hdr IndexHeader
	for _, p := range []*int32{&hdr.Clusters, &hdr.Dimension, &hdr.Metric} {
		v, err := br.ReadInt32()
		if err != nil {
			return hdr, truncated(err, "header")
		}
		*p = v
	}
	if hdr.Clusters <= 0 {
		return hdr, model.Formatf("invalid cluster count %d", hdr.Clusters)
	}
	if hdr.Dimension <= 0 {
		return hdr, model.Formatf("invalid dimension %d", hdr.Dimension)
	}
	return hdr, nil
}

func readIDs(br *BinaryReader, m int) ([]uint32, error) {
	ids := make([]uint32, 0, min(m, idChunk))
	for len(ids) < m {
		n := min(m-len(ids), idChunk)
		start := len(ids)
		ids = append(ids, make([]uint32, n)...)
		if err := br.ReadUint32SliceInto(ids[start:]); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// readFloats appends n float32 values to dst, idChunk at a time.
func readFloats(br *BinaryReader, dst []float32, n int) ([]float32, error) {
	for n > 0 {
		c := min(n, idChunk)
		start := len(dst)
		dst = append(dst, make([]float32, c)...)
		if err := br.ReadFloat32SliceInto(dst[start:]); err != nil {
			return nil, err
		}
		n -= c
	}
	return dst, nil
}

// truncated maps short reads to format errors and everything else to I/O
// errors.
func truncated(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return model.Formatf("truncated %s", what)
	}
	return fmt.Errorf("%w: read %s: %w", model.ErrIO, what, err)
}
