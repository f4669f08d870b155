package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/veloxdb/veloxdb/model"
)

// Codec is the compression applied to snapshot files in a remote archive.
type Codec uint8

const (
	// CodecNone stores files as they are.
	CodecNone Codec = iota
	// CodecLZ4 uses the LZ4 frame format (fast, modest ratio).
	CodecLZ4
	// CodecZstd uses zstd frames (slower, better ratio).
	CodecZstd
)

var codecs = []Codec{CodecNone, CodecLZ4, CodecZstd}

// ParseCodec resolves a codec by name: "none", "lz4", "zstd" (or "zst").
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd", "zst":
		return CodecZstd, nil
	}
	return 0, model.InvalidParameterf("unknown codec %q", s)
}

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

// Suffix is appended to a file's name in the archive.
func (c Codec) Suffix() string {
	switch c {
	case CodecLZ4:
		return ".lz4"
	case CodecZstd:
		return ".zst"
	}
	return ""
}

// NewWriter compresses into w. Close flushes the frame but does not close w.
func (c Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.ChecksumOption(true), lz4.ConcurrencyOption(1)); err != nil {
			return nil, err
		}
		return zw, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		return enc, nil
	}
	return nil, model.InvalidParameterf("unknown codec %d", uint8(c))
}

// NewReader decompresses r.
func (c Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecNone:
		return io.NopCloser(r), nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CodecZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	}
	return nil, model.InvalidParameterf("unknown codec %d", uint8(c))
}

// codecFor recognizes the codec from an archived file name.
func codecFor(archived, name string) (Codec, bool) {
	for _, c := range codecs {
		if archived == name+c.Suffix() {
			return c, true
		}
	}
	return 0, false
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
