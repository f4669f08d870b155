package persistence

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/index/ivf"
	"github.com/veloxdb/veloxdb/model"
)

// ivfBytes assembles an .ivf stream from raw int32/float32 words.
func ivfBytes(words ...any) []byte {
	var buf bytes.Buffer
	for _, w := range words {
		switch v := w.(type) {
		case int:
			_ = binary.Write(&buf, binary.LittleEndian, int32(v))
		case float32:
			_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
		}
	}
	return buf.Bytes()
}

func TestEncodeIndex_Layout(t *testing.T) {
	idx, err := ivf.New(distance.MetricCosine, 2, []float32{1, 2, 3, 4}, [][]uint32{{2, 0}, {1}})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := EncodeIndex(&buf, idx)
	require.NoError(t, err)

	want := ivfBytes(
		2, 2, 1,
		float32(1), float32(2), 2, 0, 2,
		float32(3), float32(4), 1, 1,
	)
	assert.Equal(t, want, buf.Bytes())
	assert.Equal(t, int64(len(want)), n)
}

func TestDecodeIndex_RoundTrip(t *testing.T) {
	members := [][]uint32{{}, {0, 5, 9}, {1, 2, 3, 4}}
	centroids := []float32{0, 0, 0, 1.5, -2, 0.25, 7, 8, 9}
	idx, err := ivf.New(distance.MetricL2, 3, centroids, members)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = EncodeIndex(&buf, idx)
	require.NoError(t, err)

	got, err := DecodeIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, got.K())
	assert.Equal(t, 3, got.Dimension())
	assert.Equal(t, distance.MetricL2, got.Metric())
	assert.Equal(t, centroids, got.Centroids())
	for j := range members {
		assert.Equal(t, idx.Members(j).ToArray(), got.Members(j).ToArray())
	}
}

func TestDecodeIndex_LargeCluster(t *testing.T) {
	ids := make([]uint32, 3*idChunk+17)
	for i := range ids {
		ids[i] = uint32(i) //nolint:gosec // test data
	}
	idx, err := ivf.New(distance.MetricL2, 1, []float32{0}, [][]uint32{ids})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = EncodeIndex(&buf, idx)
	require.NoError(t, err)

	got, err := DecodeIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, len(ids), got.Size(0))
}

func TestDecodeIndex_TrailingOffset(t *testing.T) {
	_, err := DecodeIndex(bytes.NewReader(append(ivfBytes(1, 1, 0, float32(0), 1, 0), 0xff)))
	require.ErrorIs(t, err, model.ErrFormat)
	assert.Contains(t, err.Error(), "offset 24")
}

func TestDecodeIndex_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"ShortHeader", ivfBytes(1, 2)},
		{"ZeroClusters", ivfBytes(0, 2, 0)},
		{"NegativeDim", ivfBytes(1, -2, 0)},
		{"UnknownMetric", ivfBytes(1, 1, 7, float32(0), 0)},
		{"TruncatedCentroid", ivfBytes(1, 2, 0, float32(0))},
		{"MissingCount", ivfBytes(1, 1, 0, float32(0))},
		{"NegativeCount", ivfBytes(1, 1, 0, float32(0), -1)},
		{"TruncatedIDs", ivfBytes(1, 1, 0, float32(0), 3, 0, 1)},
		{"NegativeID", ivfBytes(1, 1, 0, float32(0), 1, -4)},
		{"MissingCluster", ivfBytes(2, 1, 0, float32(0), 1, 0)},
		{"TrailingBytes", append(ivfBytes(1, 1, 0, float32(0), 1, 0), 0xff)},
		{"DuplicateAcrossClusters", ivfBytes(2, 1, 0, float32(0), 1, 3, float32(1), 1, 3)},
		{"DuplicateInCluster", ivfBytes(1, 1, 0, float32(0), 2, 3, 3)},
		{"HugeCount", ivfBytes(1, 1, 0, float32(0), math.MaxInt32)},
		{"HugeHeader", ivfBytes(65536, math.MaxInt32, 0)},
		{"HugeDimension", ivfBytes(1, math.MaxInt32, 0, float32(1), float32(2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIndex(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, model.ErrFormat)
		})
	}
}
