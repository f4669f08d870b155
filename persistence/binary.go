package persistence

import (
	"encoding/binary"
	"io"
	"math"
)

// BinaryWriter writes little-endian int32/float32 values.
type BinaryWriter struct {
	w       io.Writer
	scratch [4]byte
	n       int64
}

// NewBinaryWriter creates a new binary writer.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: w}
}

// Written returns the number of bytes written so far.
func (bw *BinaryWriter) Written() int64 { return bw.n }

func (bw *BinaryWriter) write(p []byte) error {
	n, err := bw.w.Write(p)
	bw.n += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return err
}

// WriteInt32 writes a single int32.
func (bw *BinaryWriter) WriteInt32(v int32) error {
	binary.LittleEndian.PutUint32(bw.scratch[:], uint32(v)) //nolint:gosec // two's complement
	return bw.write(bw.scratch[:])
}

// WriteFloat32Slice writes vec as raw little-endian float32 values.
func (bw *BinaryWriter) WriteFloat32Slice(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	if nativeLittleEndian {
		if err := validateAlignment(vec); err != nil {
			return err
		}
		return bw.write(bytesOf(vec))
	}
	for _, v := range vec {
		binary.LittleEndian.PutUint32(bw.scratch[:], math.Float32bits(v))
		if err := bw.write(bw.scratch[:]); err != nil {
			return err
		}
	}
	return nil
}

// WriteUint32Slice writes s as raw little-endian uint32 values.
func (bw *BinaryWriter) WriteUint32Slice(s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	if nativeLittleEndian {
		if err := validateAlignment(s); err != nil {
			return err
		}
		return bw.write(bytesOf(s))
	}
	for _, v := range s {
		binary.LittleEndian.PutUint32(bw.scratch[:], v)
		if err := bw.write(bw.scratch[:]); err != nil {
			return err
		}
	}
	return nil
}

// BinaryReader reads little-endian int32/float32 values. Short reads
// surface as io.EOF or io.ErrUnexpectedEOF.
type BinaryReader struct {
	r       io.Reader
	scratch [4]byte
	n       int64
}

// NewBinaryReader creates a new binary reader.
func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{r: r}
}

// Consumed returns the number of bytes read so far.
func (br *BinaryReader) Consumed() int64 { return br.n }

func (br *BinaryReader) read(p []byte) error {
	n, err := io.ReadFull(br.r, p)
	br.n += int64(n)
	return err
}

// ReadInt32 reads a single int32.
func (br *BinaryReader) ReadInt32() (int32, error) {
	if err := br.read(br.scratch[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(br.scratch[:])), nil //nolint:gosec // two's complement
}

// ReadFloat32SliceInto fills vec from the stream.
func (br *BinaryReader) ReadFloat32SliceInto(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	if nativeLittleEndian {
		return br.read(bytesOf(vec))
	}
	for i := range vec {
		if err := br.read(br.scratch[:]); err != nil {
			return err
		}
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(br.scratch[:]))
	}
	return nil
}

// ReadUint32SliceInto fills s from the stream.
func (br *BinaryReader) ReadUint32SliceInto(s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	if nativeLittleEndian {
		return br.read(bytesOf(s))
	}
	for i := range s {
		if err := br.read(br.scratch[:]); err != nil {
			return err
		}
		s[i] = binary.LittleEndian.Uint32(br.scratch[:])
	}
	return nil
}

// AtEOF reports whether the stream is exhausted. It consumes one byte when
// it is not.
func (br *BinaryReader) AtEOF() (bool, error) {
	var b [1]byte
	n, err := br.r.Read(b[:])
	for n == 0 && err == nil {
		n, err = br.r.Read(b[:])
	}
	if n > 0 {
		br.n += int64(n)
		return false, nil
	}
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
