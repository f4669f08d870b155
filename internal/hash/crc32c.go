package hash

import (
	"hash"
	"hash/crc32"
	"io"
)

// crc32cTable is pre-computed for CRC32-Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a new CRC32-Castagnoli hash.Hash32.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

// Reader streams r to completion and returns the number of bytes read
// together with their CRC32C.
func Reader(r io.Reader) (int64, uint32, error) {
	h := NewCRC32C()
	n, err := io.Copy(h, r)
	if err != nil {
		return n, 0, err
	}
	return n, h.Sum32(), nil
}

// Writer wraps w and accumulates the CRC32C and size of everything
// written through it.
type Writer struct {
	w    io.Writer
	h    hash.Hash32
	size int64
}

// NewWriter returns a checksumming Writer around w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, h: NewCRC32C()}
}

func (cw *Writer) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.h.Write(p[:n])
		cw.size += int64(n)
	}
	return n, err
}

// Sum32 returns the checksum of the bytes written so far.
func (cw *Writer) Sum32() uint32 {
	return cw.h.Sum32()
}

// Size returns the number of bytes written so far.
func (cw *Writer) Size() int64 {
	return cw.size
}
