package persistence

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinary_WriteRead(t *testing.T) {
	for _, native := range []bool{true, false} {
		t.Run(map[bool]string{true: "Native", false: "PerElement"}[native], func(t *testing.T) {
			saved := nativeLittleEndian
			nativeLittleEndian = native && saved
			defer func() { nativeLittleEndian = saved }()

			var buf bytes.Buffer
			w := NewBinaryWriter(&buf)
			require.NoError(t, w.WriteInt32(-7))
			require.NoError(t, w.WriteFloat32Slice([]float32{1.5, -2, 0}))
			require.NoError(t, w.WriteUint32Slice([]uint32{1, 1 << 31}))
			require.NoError(t, w.WriteFloat32Slice(nil))
			assert.Equal(t, int64(4+12+8), w.Written())
			assert.Equal(t, []byte{0xf9, 0xff, 0xff, 0xff}, buf.Bytes()[:4])

			r := NewBinaryReader(&buf)
			v, err := r.ReadInt32()
			require.NoError(t, err)
			assert.Equal(t, int32(-7), v)

			f := make([]float32, 3)
			require.NoError(t, r.ReadFloat32SliceInto(f))
			assert.Equal(t, []float32{1.5, -2, 0}, f)

			u := make([]uint32, 2)
			require.NoError(t, r.ReadUint32SliceInto(u))
			assert.Equal(t, []uint32{1, 1 << 31}, u)
			assert.Equal(t, int64(24), r.Consumed())

			eof, err := r.AtEOF()
			require.NoError(t, err)
			assert.True(t, eof)
		})
	}
}

func TestBinary_ShortRead(t *testing.T) {
	r := NewBinaryReader(bytes.NewReader([]byte{1, 2}))
	_, err := r.ReadInt32()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	r = NewBinaryReader(bytes.NewReader(nil))
	_, err = r.ReadInt32()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBinary_AtEOFConsumes(t *testing.T) {
	r := NewBinaryReader(bytes.NewReader([]byte{9}))
	eof, err := r.AtEOF()
	require.NoError(t, err)
	assert.False(t, eof)
	assert.Equal(t, int64(1), r.Consumed())
}
