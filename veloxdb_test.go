package veloxdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloxdb/veloxdb/internal/fs"
)

func randomVectors(n, dim int, seed uint64) [][]float32 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func filled(t *testing.T, vecs [][]float32, opts ...Option) *VectorIndex {
	t.Helper()
	db := New(opts...)
	for i, v := range vecs {
		id, err := db.Add(v)
		require.NoError(t, err)
		require.Equal(t, ID(i), id) //nolint:gosec // test sizes fit
	}
	return db
}

// writeRawFvecs writes records the way external tools produce them.
func writeRawFvecs(t *testing.T, path string, vecs [][]float32) {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range vecs {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(v)))) //nolint:gosec // test dims fit
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestBruteForceSmallCorpus(t *testing.T) {
	db := filled(t, [][]float32{{1, 2, 3, 4, 5}, {10, 20, 30, 40, 50}})

	id, err := db.Search(t.Context(), []float32{0.1, 0.2, 0.3, 0.4, 0.5}, MetricL2)
	require.NoError(t, err)
	assert.Equal(t, ID(0), id)

	res, err := db.SearchResult(t.Context(), []float32{0.1, 0.2, 0.3, 0.4, 0.5}, MetricL2)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Cluster)
	assert.Equal(t, 2, res.Scanned)
	assert.InDelta(t, 0.81+3.24+7.29+12.96+20.25, res.Distance, 1e-4)
}

func TestLoadFvecsConstantRows(t *testing.T) {
	vecs := make([][]float32, 1000)
	for i := range vecs {
		v := make([]float32, 128)
		for j := range v {
			v[j] = float32(i)
		}
		vecs[i] = v
	}
	path := filepath.Join(t.TempDir(), "constant.fvecs")
	writeRawFvecs(t, path, vecs)

	db := New()
	defer db.Close()
	require.NoError(t, db.LoadFvecs(path))
	assert.Equal(t, 1000, db.Len())
	assert.Equal(t, 128, db.Dimension())

	query := make([]float32, 128)
	for j := range query {
		query[j] = 50
	}
	id, err := db.Search(t.Context(), query, MetricL2)
	require.NoError(t, err)
	assert.Equal(t, ID(50), id)

	got, err := db.Get(999)
	require.NoError(t, err)
	assert.Equal(t, vecs[999], got)
}

func TestIndexedRoundTripLarge(t *testing.T) {
	if testing.Short() {
		t.Skip("trains 100 clusters over 10k vectors")
	}
	vecs := randomVectors(10_000, 128, 3)
	db := filled(t, vecs)
	require.NoError(t, db.BuildIndex(t.Context(), 100, 5, MetricL2))

	dir := t.TempDir()
	vpath, ipath := filepath.Join(dir, "vectors.fvecs"), filepath.Join(dir, "index.ivf")
	require.NoError(t, db.WriteFvecs(vpath))
	require.NoError(t, db.SaveIndex(ipath))

	fresh := New()
	defer fresh.Close()
	require.NoError(t, fresh.LoadFvecs(vpath))
	require.NoError(t, fresh.LoadIndex(ipath))

	id, err := fresh.Search(t.Context(), vecs[500], MetricL2)
	require.NoError(t, err)
	assert.Less(t, int(id), 10_000)

	before, err := db.SearchResult(t.Context(), vecs[500], MetricL2)
	require.NoError(t, err)
	after, err := fresh.SearchResult(t.Context(), vecs[500], MetricL2)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBuildIndex_TooManyClusters(t *testing.T) {
	db := filled(t, randomVectors(5, 3, 1))
	err := db.BuildIndex(t.Context(), 6, 10, MetricL2)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.False(t, db.Indexed())

	assert.ErrorIs(t, db.BuildIndex(t.Context(), 0, 10, MetricL2), ErrInvalidParameter)
	assert.ErrorIs(t, db.BuildIndex(t.Context(), 2, 0, MetricL2), ErrInvalidParameter)
}

func TestSearch_EmptyStore(t *testing.T) {
	db := New()
	_, err := db.Search(t.Context(), []float32{1, 2}, MetricCosine)
	assert.ErrorIs(t, err, ErrEmptyStore)

	assert.ErrorIs(t, db.BuildIndex(t.Context(), 1, 1, MetricL2), ErrEmptyStore)
}

func TestAdd_DimensionInvariant(t *testing.T) {
	db := filled(t, [][]float32{{1, 2, 3}})

	_, err := db.Add([]float32{1, 2})
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
	assert.Equal(t, 1, db.Len())

	_, err = db.Search(t.Context(), []float32{1, 2, 3, 4}, MetricL2)
	require.ErrorAs(t, err, &dm)

	_, err = New().Add(nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestGet_OutOfRange(t *testing.T) {
	db := filled(t, [][]float32{{1}})
	_, err := db.Get(1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	v, err := db.Get(0)
	require.NoError(t, err)
	v[0] = 42
	again, _ := db.Get(0)
	assert.Equal(t, []float32{1}, again)
}

func TestBruteForceExactness(t *testing.T) {
	vecs := randomVectors(300, 17, 9)
	for _, m := range []Metric{MetricL2, MetricCosine} {
		db := filled(t, vecs)
		for _, i := range []int{0, 1, 150, 299} {
			id, err := db.Search(t.Context(), vecs[i], m)
			require.NoError(t, err)
			assert.Equal(t, ID(i), id, "metric %s, vector %d", m, i) //nolint:gosec // test sizes fit
		}
	}
}

func TestSIMDScalarEquivalence(t *testing.T) {
	vecs := randomVectors(500, 33, 5)
	queries := randomVectors(40, 33, 6)

	for _, m := range []Metric{MetricL2, MetricCosine} {
		for _, indexed := range []bool{false, true} {
			db := filled(t, vecs)
			if indexed {
				require.NoError(t, db.BuildIndex(t.Context(), 8, 10, m))
			}
			for _, q := range queries {
				db.SetSIMD(true)
				fast, err := db.Search(t.Context(), q, m)
				require.NoError(t, err)
				db.SetSIMD(false)
				slow, err := db.Search(t.Context(), q, m)
				require.NoError(t, err)
				assert.Equal(t, fast, slow)
			}
			assert.False(t, db.SIMD())
		}
	}
}

func TestSIMDToggleIsPerInstance(t *testing.T) {
	a, b := New(), New(WithSIMD(false))
	assert.True(t, a.SIMD())
	assert.False(t, b.SIMD())
	b.SetSIMD(true)
	a.SetSIMD(false)
	assert.False(t, a.SIMD())
	assert.True(t, b.SIMD())
}

func TestBuildIndex_Partition(t *testing.T) {
	db := filled(t, randomVectors(400, 6, 12))
	require.NoError(t, db.BuildIndex(t.Context(), 10, 20, MetricCosine))

	st, ok := db.TrainingStats()
	require.True(t, ok)
	assert.Equal(t, 10, st.Clusters)
	assert.Equal(t, 400, st.Covered)
	assert.GreaterOrEqual(t, st.Iterations, 1)
	assert.LessOrEqual(t, st.Iterations, 20)

	seen := make(map[uint32]int)
	for j := range db.index.K() {
		assert.Positive(t, db.index.Size(j), "cluster %d is empty", j)
		for _, id := range db.index.Members(j).ToArray() {
			seen[id]++
		}
	}
	assert.Len(t, seen, 400)
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %d", id)
	}

	m, ok := db.IndexMetric()
	require.True(t, ok)
	assert.Equal(t, MetricCosine, m)
}

func TestBuildIndex_Deterministic(t *testing.T) {
	vecs := randomVectors(200, 4, 8)
	a, b := filled(t, vecs), filled(t, vecs, WithTrainingWorkers(1))
	require.NoError(t, a.BuildIndex(t.Context(), 5, 10, MetricL2))
	require.NoError(t, b.BuildIndex(t.Context(), 5, 10, MetricL2))
	assert.Equal(t, a.index.Centroids(), b.index.Centroids())

	c := filled(t, vecs, WithSeed(7))
	require.NoError(t, c.BuildIndex(t.Context(), 5, 10, MetricL2))
	st, _ := c.TrainingStats()
	assert.Equal(t, 200, st.Covered)
}

func TestSearch_AddedAfterBuildIsExcluded(t *testing.T) {
	db := filled(t, [][]float32{{0, 0}, {0, 1}, {10, 10}, {10, 11}})
	require.NoError(t, db.BuildIndex(t.Context(), 2, 10, MetricL2))

	id, err := db.Add([]float32{0.5, 0.5})
	require.NoError(t, err)

	res, err := db.SearchResult(t.Context(), []float32{0.5, 0.5}, MetricL2)
	require.NoError(t, err)
	assert.NotEqual(t, id, res.ID)
	assert.GreaterOrEqual(t, res.Cluster, 0)
	assert.Equal(t, 2, res.Scanned)
}

func TestSearch_MetricDiffersFromTraining(t *testing.T) {
	db := filled(t, randomVectors(100, 5, 2))
	require.NoError(t, db.BuildIndex(t.Context(), 4, 10, MetricL2))

	res, err := db.SearchResult(t.Context(), randomVectors(1, 5, 99)[0], MetricCosine)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Cluster, 0)
	assert.Less(t, int(res.ID), 100)
}

func TestSearchK(t *testing.T) {
	db := filled(t, [][]float32{{0}, {3}, {1}, {2}, {1}})
	res, err := db.SearchK(t.Context(), []float32{1.1}, 3, MetricL2)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []ID{2, 4, 3}, []ID{res[0].ID, res[1].ID, res[2].ID})

	_, err = db.SearchK(t.Context(), []float32{1}, 0, MetricL2)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPersistenceRoundTrip(t *testing.T) {
	vecs := randomVectors(800, 12, 21)
	queries := randomVectors(50, 12, 22)

	for _, m := range []Metric{MetricL2, MetricCosine} {
		t.Run(m.String(), func(t *testing.T) {
			db := filled(t, vecs)
			require.NoError(t, db.BuildIndex(t.Context(), 16, 15, m))

			dir := t.TempDir()
			vpath, ipath := filepath.Join(dir, "v.fvecs"), filepath.Join(dir, "i.ivf")
			require.NoError(t, db.WriteFvecs(vpath))
			require.NoError(t, db.SaveIndex(ipath))

			fresh := New()
			defer fresh.Close()
			require.NoError(t, fresh.LoadFvecs(vpath))
			require.NoError(t, fresh.LoadIndex(ipath))
			assert.True(t, fresh.Indexed())

			for _, q := range queries {
				want, err := db.SearchResult(t.Context(), q, m)
				require.NoError(t, err)
				got, err := fresh.SearchResult(t.Context(), q, m)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestLoadedStoreCopyOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.fvecs")
	writeRawFvecs(t, path, [][]float32{{1, 1}, {2, 2}})

	db := New()
	defer db.Close()
	require.NoError(t, db.LoadFvecs(path))

	id, err := db.Add([]float32{3, 3})
	require.NoError(t, err)
	assert.Equal(t, ID(2), id)

	got, err := db.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, raw, 2*(4+8))
}

func TestLoadFvecs_Atomic(t *testing.T) {
	db := filled(t, [][]float32{{1, 2}, {3, 4}})
	require.NoError(t, db.BuildIndex(t.Context(), 1, 1, MetricL2))

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.fvecs")
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, int32(2))
	_ = binary.Write(&buf, binary.LittleEndian, []float32{1, 2})
	_ = binary.Write(&buf, binary.LittleEndian, int32(3))
	require.NoError(t, os.WriteFile(bad, buf.Bytes(), 0o644))

	assert.ErrorIs(t, db.LoadFvecs(bad), ErrFormat)
	assert.ErrorIs(t, db.LoadFvecs(filepath.Join(dir, "missing.fvecs")), ErrIO)
	assert.Equal(t, 2, db.Len())
	assert.True(t, db.Indexed())
}

func TestLoadFvecs_DropsIndex(t *testing.T) {
	db := filled(t, randomVectors(20, 3, 4))
	require.NoError(t, db.BuildIndex(t.Context(), 2, 5, MetricL2))

	path := filepath.Join(t.TempDir(), "v.fvecs")
	writeRawFvecs(t, path, randomVectors(5, 3, 5))
	require.NoError(t, db.LoadFvecs(path))
	defer db.Close()
	assert.False(t, db.Indexed())
	assert.Equal(t, 5, db.Len())
}

func TestLoadIndex_Errors(t *testing.T) {
	src := filled(t, randomVectors(50, 4, 31))
	require.NoError(t, src.BuildIndex(t.Context(), 3, 5, MetricL2))
	path := filepath.Join(t.TempDir(), "i.ivf")
	require.NoError(t, src.SaveIndex(path))

	t.Run("EmptyStore", func(t *testing.T) {
		assert.ErrorIs(t, New().LoadIndex(path), ErrVersionMismatch)
	})
	t.Run("Dimension", func(t *testing.T) {
		db := filled(t, randomVectors(50, 5, 31))
		assert.ErrorIs(t, db.LoadIndex(path), ErrVersionMismatch)
		assert.False(t, db.Indexed())
	})
	t.Run("IDsBeyondStore", func(t *testing.T) {
		db := filled(t, randomVectors(10, 4, 31))
		assert.ErrorIs(t, db.LoadIndex(path), ErrVersionMismatch)
	})
	t.Run("Missing", func(t *testing.T) {
		assert.ErrorIs(t, src.LoadIndex(filepath.Join(t.TempDir(), "nope.ivf")), ErrIO)
	})
	t.Run("Truncated", func(t *testing.T) {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		short := filepath.Join(t.TempDir(), "short.ivf")
		require.NoError(t, os.WriteFile(short, raw[:len(raw)-3], 0o644))

		db := filled(t, randomVectors(50, 4, 31))
		require.NoError(t, db.BuildIndex(t.Context(), 2, 5, MetricCosine))
		assert.ErrorIs(t, db.LoadIndex(short), ErrFormat)
		m, _ := db.IndexMetric()
		assert.Equal(t, MetricCosine, m)
	})
}

func TestSaveIndex_NoIndex(t *testing.T) {
	db := filled(t, [][]float32{{1}})
	assert.ErrorIs(t, db.SaveIndex(filepath.Join(t.TempDir(), "i.ivf")), ErrInvalidParameter)
}

func TestWriteFvecs_Faults(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("v.fvecs", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	db := filled(t, [][]float32{{1, 2}}, WithFileSystem(ffs))

	path := filepath.Join(t.TempDir(), "v.fvecs")
	err := db.WriteFvecs(path)
	assert.ErrorIs(t, err, ErrIO)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteFvecs_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.fvecs")
	require.NoError(t, New().WriteFvecs(path))

	db := New()
	require.NoError(t, db.LoadFvecs(path))
	assert.Equal(t, 0, db.Len())
	_, err := db.Search(t.Context(), []float32{1}, MetricL2)
	assert.ErrorIs(t, err, ErrEmptyStore)
}

func TestSnapshotRoundTrip(t *testing.T) {
	vecs := randomVectors(200, 8, 40)
	db := filled(t, vecs)
	require.NoError(t, db.BuildIndex(t.Context(), 6, 10, MetricCosine))
	want, _ := db.TrainingStats()

	dir := filepath.Join(t.TempDir(), "snap")
	mf, err := db.SaveSnapshot(t.Context(), dir)
	require.NoError(t, err)
	assert.Equal(t, 200, mf.Count)

	fresh := New()
	defer fresh.Close()
	got, err := fresh.LoadSnapshot(t.Context(), dir)
	require.NoError(t, err)
	assert.Equal(t, mf.ID, got.ID)

	st, ok := fresh.TrainingStats()
	require.True(t, ok)
	assert.Equal(t, want.Iterations, st.Iterations)

	for _, q := range vecs[:20] {
		a, err := db.SearchResult(t.Context(), q, MetricCosine)
		require.NoError(t, err)
		b, err := fresh.SearchResult(t.Context(), q, MetricCosine)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}

	_, err = New().LoadSnapshot(t.Context(), t.TempDir())
	assert.ErrorIs(t, err, ErrIO)
}

func TestSearch_Canceled(t *testing.T) {
	db := filled(t, randomVectors(10, 2, 1))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := db.Search(ctx, []float32{0, 0}, MetricL2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}
	db := filled(t, randomVectors(30, 2, 1), WithMetricsCollector(mc))
	_, _ = db.Add([]float32{1})

	_, err := db.Search(t.Context(), []float32{0, 0}, MetricL2)
	require.NoError(t, err)
	require.NoError(t, db.BuildIndex(t.Context(), 3, 4, MetricL2))
	_, err = db.Search(t.Context(), []float32{0, 0}, MetricL2)
	require.NoError(t, err)
	_, err = db.Search(t.Context(), []float32{0}, MetricL2)
	require.Error(t, err)
	require.Error(t, db.LoadFvecs(filepath.Join(t.TempDir(), "missing")))

	st := mc.GetStats()
	assert.Equal(t, int64(31), st.AddCount)
	assert.Equal(t, int64(1), st.AddErrors)
	assert.Equal(t, int64(1), st.BuildCount)
	assert.Positive(t, st.BuildIterations)
	assert.Equal(t, int64(3), st.SearchCount)
	assert.Equal(t, int64(1), st.SearchErrors)
	assert.Equal(t, int64(1), st.SearchBruteForce)
	assert.Equal(t, int64(1), st.PersistErrors)
}

func slogJSON(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slogJSON(&buf))
	db := filled(t, [][]float32{{1, 2}}, WithLogger(logger))
	_, _ = db.Add([]float32{1})

	assert.Contains(t, buf.String(), `"msg":"add failed"`)
	assert.Contains(t, buf.String(), `"msg":"add completed"`)

	New(WithLogger(nil), WithMetricsCollector(nil)).SetSIMD(false)
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))
	assert.ErrorIs(t, translateError(&os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}), ErrIO)
	assert.ErrorIs(t, translateError(io.ErrUnexpectedEOF), ErrFormat)

	plain := errors.New("plain")
	assert.Equal(t, plain, translateError(plain))

	wrapped := translateError(ErrFormat)
	assert.Equal(t, ErrFormat, wrapped)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("eucl")
	require.NoError(t, err)
	assert.Equal(t, MetricL2, m)
	m, err = ParseMetric("cos")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)
	_, err = ParseMetric("hamming")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
