package veloxdb

import (
	"context"
	"time"

	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/index/ivf"
	"github.com/veloxdb/veloxdb/manifest"
	"github.com/veloxdb/veloxdb/model"
	"github.com/veloxdb/veloxdb/persistence"
	"github.com/veloxdb/veloxdb/searcher"
	"github.com/veloxdb/veloxdb/vectorstore"
)

type (
	// ID is a dense, zero-based vector identifier equal to insertion order.
	ID = model.ID

	// Result is the outcome of a nearest-neighbor query.
	Result = model.Result

	// Metric selects the distance function.
	Metric = distance.Metric

	// Stats describes the current index.
	Stats = ivf.Stats

	// Manifest describes a snapshot directory.
	Manifest = manifest.Manifest
)

const (
	// MetricL2 is the squared Euclidean distance.
	MetricL2 = distance.MetricL2
	// MetricCosine is one minus the cosine similarity.
	MetricCosine = distance.MetricCosine
)

// ParseMetric resolves a metric name such as "eucl", "l2", "cos" or "cosine".
func ParseMetric(s string) (Metric, error) {
	return distance.ParseMetric(s)
}

// VectorIndex stores vectors and answers nearest-neighbor queries, exactly
// by scanning the whole corpus or approximately by probing the nearest
// cluster of an IVF index.
//
// VectorIndex does no locking. Mutations (Add, BuildIndex, the Load
// methods, SetSIMD and Close) must be serialized by the caller; Get and the
// Search methods may run concurrently with each other.
type VectorIndex struct {
	store   *vectorstore.Store
	index   *ivf.Index
	engine  *distance.Engine
	pm      *persistence.Manager
	seed    uint64
	workers int
	metrics MetricsCollector
	logger  *Logger
}

// New creates an empty index.
func New(optFns ...Option) *VectorIndex {
	o := applyOptions(optFns)
	return &VectorIndex{
		store:   vectorstore.New(),
		engine:  distance.NewEngine(o.simd),
		pm:      persistence.NewManager(persistence.ManagerOptions{FileSystem: o.fileSystem}),
		seed:    o.seed,
		workers: o.trainingWorkers,
		metrics: o.metricsCollector,
		logger:  o.logger,
	}
}

// Len returns the number of stored vectors.
func (v *VectorIndex) Len() int { return v.store.Len() }

// Dimension returns the vector dimensionality, or 0 before the first vector.
func (v *VectorIndex) Dimension() int { return v.store.Dimension() }

// Indexed reports whether an IVF index is present.
func (v *VectorIndex) Indexed() bool { return v.index != nil }

// TrainingStats returns the statistics of the current index.
func (v *VectorIndex) TrainingStats() (Stats, bool) {
	if v.index == nil {
		return Stats{}, false
	}
	return v.index.Stats(), true
}

// IndexMetric returns the metric the current index was trained under.
func (v *VectorIndex) IndexMetric() (Metric, bool) {
	if v.index == nil {
		return 0, false
	}
	return v.index.Metric(), true
}

// SetSIMD switches between the vectorized and the scalar distance path.
// Both report the same nearest neighbor.
func (v *VectorIndex) SetSIMD(enabled bool) {
	v.engine.SetVectorized(enabled)
	v.logger.Debug("simd toggled", "enabled", enabled)
}

// SIMD reports whether the vectorized distance path is active.
func (v *VectorIndex) SIMD() bool { return v.engine.Vectorized() }

// Add appends vec and returns its id. The first vector fixes the dimension.
//
// Vectors added after BuildIndex belong to no cluster and are only found by
// searches that run without an index.
func (v *VectorIndex) Add(vec []float32) (ID, error) {
	start := time.Now()
	id, err := v.store.Add(vec)
	err = translateError(err)
	v.metrics.RecordAdd(time.Since(start), err)
	v.logger.LogAdd(context.Background(), id, len(vec), err)
	return id, err
}

// Get returns a copy of the vector with the given id.
func (v *VectorIndex) Get(id ID) ([]float32, error) {
	vec, err := v.store.Get(id)
	return vec, translateError(err)
}

// BuildIndex trains an IVF index of k clusters with at most maxIters k-means
// rounds under metric, replacing any previous index. On failure the previous
// index stays in place.
func (v *VectorIndex) BuildIndex(ctx context.Context, k, maxIters int, metric Metric) error {
	start := time.Now()
	idx, err := ivf.Build(ctx, v.store, ivf.Config{
		K:        k,
		MaxIters: maxIters,
		Metric:   metric,
		Seed:     v.seed,
		Workers:  v.workers,
	}, v.engine)
	err = translateError(err)

	var st Stats
	if err == nil {
		v.index = idx
		st = idx.Stats()
	}
	v.metrics.RecordBuild(k, st.Iterations, time.Since(start), err)
	v.logger.LogBuild(ctx, k, metric, st, err)
	return err
}

// Search returns the id of the stored vector nearest to query under metric.
func (v *VectorIndex) Search(ctx context.Context, query []float32, metric Metric) (ID, error) {
	res, err := v.SearchResult(ctx, query, metric)
	return res.ID, err
}

// SearchResult is Search with the distance and the probed cluster.
//
// Without an index the whole corpus is scanned and the result is exact.
// With an index only the members of the cluster whose centroid is nearest
// under metric are compared, so the true nearest neighbor can be missed.
func (v *VectorIndex) SearchResult(ctx context.Context, query []float32, metric Metric) (Result, error) {
	start := time.Now()
	res, err := v.search(ctx, query, 1, metric)
	var r Result
	if err == nil {
		r = res[0]
	}
	v.metrics.RecordSearch(r.Cluster, r.Scanned, time.Since(start), err)
	v.logger.LogSearch(ctx, metric, r, err)
	return r, err
}

// SearchK returns up to k nearest vectors, best first. Ties go to the lower
// id. With an index, fewer than k results come back when the probed cluster
// is smaller than k.
func (v *VectorIndex) SearchK(ctx context.Context, query []float32, k int, metric Metric) ([]Result, error) {
	start := time.Now()
	res, err := v.search(ctx, query, k, metric)
	cluster, scanned := -1, 0
	if len(res) > 0 {
		cluster, scanned = res[0].Cluster, res[0].Scanned
	}
	v.metrics.RecordSearch(cluster, scanned, time.Since(start), err)
	return res, err
}

func (v *VectorIndex) search(ctx context.Context, query []float32, k int, metric Metric) ([]Result, error) {
	fn, err := v.engine.Func(metric)
	if err != nil {
		return nil, translateError(err)
	}
	res, err := searcher.SearchK(ctx, v.store, v.index, query, k, fn)
	return res, translateError(err)
}

// WriteFvecs writes every stored vector to path in .fvecs format. An empty
// index writes an empty file.
func (v *VectorIndex) WriteFvecs(path string) error {
	start := time.Now()
	_, err := v.pm.SaveStore(path, v.store)
	return v.persisted("write_fvecs", path, start, err)
}

// LoadFvecs replaces the stored vectors with the content of the .fvecs file
// at path, memory-mapped. The current index described the previous corpus
// and is dropped. On failure nothing changes.
func (v *VectorIndex) LoadFvecs(path string) error {
	start := time.Now()
	store, err := v.pm.LoadStore(path)
	if err == nil {
		old := v.store
		v.store, v.index = store, nil
		if cerr := old.Close(); cerr != nil {
			v.logger.Warn("release previous store", "error", cerr)
		}
	}
	return v.persisted("load_fvecs", path, start, err)
}

// SaveIndex writes the current index to path in .ivf format. It fails with
// ErrInvalidParameter when no index has been built or loaded.
func (v *VectorIndex) SaveIndex(path string) error {
	start := time.Now()
	var err error
	if v.index == nil {
		err = model.InvalidParameterf("no index to save")
	} else {
		_, err = v.pm.SaveIndex(path, v.index)
	}
	return v.persisted("save_index", path, start, err)
}

// LoadIndex replaces the current index with the one stored at path. The
// index must match the stored vectors: loading fails with
// ErrVersionMismatch when the store is empty, the dimensions differ or a
// member id is beyond the store. On failure the previous index stays.
func (v *VectorIndex) LoadIndex(path string) error {
	start := time.Now()
	idx, err := v.pm.LoadIndex(path)
	if err == nil {
		err = idx.Validate(v.store.Dimension(), v.store.Len())
	}
	if err == nil {
		v.index = idx
	}
	return v.persisted("load_index", path, start, err)
}

// SaveSnapshot writes the vectors, the index (if any) and a manifest with
// sizes and checksums into dir.
func (v *VectorIndex) SaveSnapshot(ctx context.Context, dir string) (*Manifest, error) {
	start := time.Now()
	mf, err := v.pm.SaveSnapshot(ctx, dir, v.store, v.index)
	err = v.persisted("save_snapshot", dir, start, err)
	if err != nil {
		return nil, err
	}
	return mf, nil
}

// LoadSnapshot replaces the vectors and the index with the snapshot in dir.
// Every file is verified against the manifest first; on failure nothing
// changes.
func (v *VectorIndex) LoadSnapshot(ctx context.Context, dir string) (*Manifest, error) {
	start := time.Now()
	snap, err := v.pm.LoadSnapshot(ctx, dir)
	if err == nil {
		old := v.store
		v.store, v.index = snap.Store, snap.Index
		if cerr := old.Close(); cerr != nil {
			v.logger.Warn("release previous store", "error", cerr)
		}
	}
	err = v.persisted("load_snapshot", dir, start, err)
	if err != nil {
		return nil, err
	}
	return snap.Manifest, nil
}

// Close releases the memory mapping of loaded vectors. The index is empty
// afterwards.
func (v *VectorIndex) Close() error {
	v.index = nil
	return translateError(v.store.Close())
}

func (v *VectorIndex) persisted(op, path string, start time.Time, err error) error {
	err = translateError(err)
	v.metrics.RecordPersist(op, time.Since(start), err)
	v.logger.LogPersist(context.Background(), op, path, err)
	return err
}
