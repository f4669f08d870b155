package ivf

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/model"
	"github.com/veloxdb/veloxdb/vectorstore"
)

func randomStore(t *testing.T, seed uint64, n, dim int) *vectorstore.Store {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, 3))
	s := vectorstore.New()
	v := make([]float32, dim)
	for range n {
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		_, err := s.Add(v)
		require.NoError(t, err)
	}
	return s
}

func TestBuild_Partition(t *testing.T) {
	s := randomStore(t, 1, 2000, 16)
	eng := distance.NewEngine(true)

	for _, m := range []distance.Metric{distance.MetricL2, distance.MetricCosine} {
		t.Run(m.String(), func(t *testing.T) {
			idx, err := Build(context.Background(), s, Config{K: 25, MaxIters: 10, Metric: m, Seed: 42}, eng)
			require.NoError(t, err)

			assert.Equal(t, 25, idx.K())
			assert.Equal(t, 16, idx.Dimension())
			assert.Equal(t, m, idx.Metric())
			assert.Len(t, idx.Centroids(), 25*16)

			union := roaring.New()
			total := 0
			for j := range idx.K() {
				require.Positive(t, idx.Size(j), "cluster %d is empty", j)
				assert.False(t, union.Intersects(idx.Members(j)), "cluster %d overlaps", j)
				union.Or(idx.Members(j))
				total += idx.Size(j)
			}
			assert.Equal(t, 2000, total)
			assert.Equal(t, uint64(2000), union.GetCardinality())

			st := idx.Stats()
			assert.Equal(t, 25, st.Clusters)
			assert.Equal(t, 2000, st.Covered)
			assert.GreaterOrEqual(t, st.Iterations, 1)
			assert.LessOrEqual(t, st.Iterations, 10)

			require.NoError(t, idx.Validate(16, 2000))
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	s := randomStore(t, 2, 500, 8)
	cfg := Config{K: 10, MaxIters: 5, Metric: distance.MetricL2, Seed: 7}

	a, err := Build(context.Background(), s, cfg, distance.NewEngine(true))
	require.NoError(t, err)
	b, err := Build(context.Background(), s, cfg, distance.NewEngine(true))
	require.NoError(t, err)

	assert.Equal(t, a.Centroids(), b.Centroids())
	for j := range a.K() {
		assert.True(t, a.Members(j).Equals(b.Members(j)))
	}
}

func TestBuild_InvalidParameters(t *testing.T) {
	s := randomStore(t, 3, 10, 4)
	eng := distance.NewEngine(false)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"KTooLarge", Config{K: 11, MaxIters: 5}},
		{"ZeroK", Config{K: 0, MaxIters: 5}},
		{"ZeroIters", Config{K: 2, MaxIters: 0}},
		{"BadMetric", Config{K: 2, MaxIters: 5, Metric: distance.Metric(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), s, tt.cfg, eng)
			assert.ErrorIs(t, err, model.ErrInvalidParameter)
		})
	}

	_, err := Build(context.Background(), vectorstore.New(), Config{K: 1, MaxIters: 1}, eng)
	assert.ErrorIs(t, err, model.ErrEmptyStore)
}

func TestNew(t *testing.T) {
	idx, err := New(distance.MetricCosine, 2, []float32{0, 0, 1, 1}, [][]uint32{{3, 0}, {1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.K())
	assert.Equal(t, []uint32{0, 3}, idx.Members(0).ToArray())
	assert.Equal(t, []float32{1, 1}, idx.Centroid(1))
	assert.Equal(t, 4, idx.Stats().Covered)

	tests := []struct {
		name      string
		metric    distance.Metric
		dim       int
		centroids []float32
		members   [][]uint32
	}{
		{"NoClusters", distance.MetricL2, 2, nil, nil},
		{"ZeroDim", distance.MetricL2, 0, nil, [][]uint32{{0}}},
		{"ShortCentroids", distance.MetricL2, 2, []float32{1}, [][]uint32{{0}}},
		{"UnknownMetric", distance.Metric(3), 1, []float32{1}, [][]uint32{{0}}},
		{"DuplicateInCluster", distance.MetricL2, 1, []float32{1}, [][]uint32{{4, 4}}},
		{"SharedMember", distance.MetricL2, 1, []float32{1, 2}, [][]uint32{{1, 2}, {2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.metric, tt.dim, tt.centroids, tt.members)
			assert.ErrorIs(t, err, model.ErrFormat)
		})
	}
}

func TestValidate(t *testing.T) {
	idx, err := New(distance.MetricL2, 2, []float32{0, 0, 5, 5}, [][]uint32{{0, 1}, {2}})
	require.NoError(t, err)

	assert.NoError(t, idx.Validate(2, 3))
	assert.NoError(t, idx.Validate(2, 10))
	assert.ErrorIs(t, idx.Validate(3, 3), model.ErrVersionMismatch)
	assert.ErrorIs(t, idx.Validate(2, 2), model.ErrVersionMismatch)
	assert.ErrorIs(t, idx.Validate(2, 0), model.ErrVersionMismatch)
}

func TestProbe(t *testing.T) {
	idx, err := New(distance.MetricL2, 2, []float32{0, 0, 10, 10, 0, 0}, [][]uint32{{0}, {1}, {2}})
	require.NoError(t, err)

	c, d := idx.Probe([]float32{1, 0}, distance.SquaredL2)
	assert.Equal(t, 0, c)
	assert.Equal(t, float32(1), d)

	c, _ = idx.Probe([]float32{9, 9}, distance.SquaredL2)
	assert.Equal(t, 1, c)
}

func TestWithTraining(t *testing.T) {
	idx, err := New(distance.MetricL2, 1, []float32{0}, [][]uint32{{0, 1}})
	require.NoError(t, err)

	c := idx.WithTraining(7, true, 2)
	assert.Equal(t, 7, c.Stats().Iterations)
	assert.True(t, c.Stats().Converged)
	assert.Equal(t, 2, c.Stats().Reseeded)
	assert.Equal(t, 2, c.Stats().Covered)
	assert.Equal(t, 0, idx.Stats().Iterations)
}
