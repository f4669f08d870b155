package ivf

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/internal/kmeans"
	"github.com/veloxdb/veloxdb/model"
)

// Config controls index training.
type Config struct {
	K        int
	MaxIters int
	Metric   distance.Metric
	Seed     uint64
	Workers  int
}

// Stats describes a trained or loaded index.
type Stats struct {
	Clusters   int  `json:"clusters" yaml:"clusters"`
	Dimension  int  `json:"dimension" yaml:"dimension"`
	Iterations int  `json:"iterations" yaml:"iterations"`
	Converged  bool `json:"converged" yaml:"converged"`
	Reseeded   int  `json:"reseeded" yaml:"reseeded"`
	Covered    int  `json:"covered" yaml:"covered"` // Ids that belong to a cluster.
}

// Index is an immutable IVF index.
type Index struct {
	metric    distance.Metric
	dim       int
	centroids []float32 // Flattened, K * dim.
	lists     []*roaring.Bitmap
	stats     Stats
}

// Build trains an index over data with k-means under cfg.Metric.
func Build(ctx context.Context, data kmeans.Matrix, cfg Config, eng *distance.Engine) (*Index, error) {
	fn, err := eng.Func(cfg.Metric)
	if err != nil {
		return nil, err
	}

	res, err := kmeans.Train(ctx, data, kmeans.Config{
		K:        cfg.K,
		MaxIters: cfg.MaxIters,
		Seed:     cfg.Seed,
		Workers:  cfg.Workers,
	}, fn)
	if err != nil {
		return nil, err
	}

	lists := make([]*roaring.Bitmap, res.K)
	for j := range lists {
		lists[j] = roaring.New()
	}
	for id, c := range res.Assignments {
		lists[c].Add(uint32(id)) //nolint:gosec // corpus ids fit uint32
	}
	for _, l := range lists {
		l.RunOptimize()
	}

	return &Index{
		metric:    cfg.Metric,
		dim:       res.Dim,
		centroids: res.Centroids,
		lists:     lists,
		stats: Stats{
			Clusters:   res.K,
			Dimension:  res.Dim,
			Iterations: res.Iterations,
			Converged:  res.Converged,
			Reseeded:   res.Reseeded,
			Covered:    len(res.Assignments),
		},
	}, nil
}

// New assembles an index from decoded parts. centroids is flattened
// (len(members) * dim). Fails with a format error if the shapes disagree or
// an id appears in more than one cluster or twice in one cluster.
func New(metric distance.Metric, dim int, centroids []float32, members [][]uint32) (*Index, error) {
	k := len(members)
	if !metric.Valid() {
		return nil, model.Formatf("unknown metric %d", int(metric))
	}
	if k <= 0 || dim <= 0 {
		return nil, model.Formatf("invalid shape: %d clusters, dimension %d", k, dim)
	}
	if len(centroids) != k*dim {
		return nil, model.Formatf("expected %d centroid values, got %d", k*dim, len(centroids))
	}

	seen := roaring.New()
	lists := make([]*roaring.Bitmap, k)
	for j, ids := range members {
		l := roaring.New()
		for _, id := range ids {
			if !l.CheckedAdd(id) {
				return nil, model.Formatf("cluster %d: duplicate member %d", j, id)
			}
		}
		if seen.Intersects(l) {
			return nil, model.Formatf("cluster %d: member shared with another cluster", j)
		}
		seen.Or(l)
		l.RunOptimize()
		lists[j] = l
	}

	return &Index{
		metric:    metric,
		dim:       dim,
		centroids: centroids,
		lists:     lists,
		stats: Stats{
			Clusters:  k,
			Dimension: dim,
			Covered:   int(seen.GetCardinality()), //nolint:gosec // bounded by uint32 ids
		},
	}, nil
}

// K returns the number of clusters.
func (x *Index) K() int { return len(x.lists) }

// Dimension returns the centroid dimensionality.
func (x *Index) Dimension() int { return x.dim }

// Metric returns the metric the index was trained under.
func (x *Index) Metric() distance.Metric { return x.metric }

// Stats returns training statistics.
func (x *Index) Stats() Stats { return x.stats }

// Centroids returns the flattened centroids. Do not modify.
func (x *Index) Centroids() []float32 { return x.centroids }

// Centroid returns the j-th centroid without copying. Do not modify.
func (x *Index) Centroid(j int) []float32 {
	return x.centroids[j*x.dim : (j+1)*x.dim : (j+1)*x.dim]
}

// Members returns the posting list of cluster j. Do not modify.
func (x *Index) Members(j int) *roaring.Bitmap { return x.lists[j] }

// Size returns the member count of cluster j.
func (x *Index) Size(j int) int {
	return int(x.lists[j].GetCardinality()) //nolint:gosec // bounded by uint32 ids
}

// Probe returns the cluster whose centroid is nearest to query under fn.
// Ties go to the lowest cluster index.
func (x *Index) Probe(query []float32, fn distance.Func) (int, float32) {
	return kmeans.Nearest(query, x.centroids, x.dim, fn)
}

// Validate checks that the index can serve a corpus of size vectors with
// dimension dim. Fails with a version mismatch otherwise.
func (x *Index) Validate(dim, size int) error {
	if size == 0 {
		return model.VersionMismatchf("index over an empty store")
	}
	if dim != x.dim {
		return model.VersionMismatchf("index dimension %d, store dimension %d", x.dim, dim)
	}
	for j, l := range x.lists {
		if l.IsEmpty() {
			continue
		}
		if maxID := l.Maximum(); int64(maxID) >= int64(size) {
			return model.VersionMismatchf("cluster %d references id %d, store has %d vectors", j, maxID, size)
		}
	}
	return nil
}

// WithTraining returns a shallow copy of x whose Stats carry the given
// training outcome. Indexes decoded from disk use it to restore the numbers
// recorded next to them.
func (x *Index) WithTraining(iterations int, converged bool, reseeded int) *Index {
	c := *x
	c.stats.Iterations = iterations
	c.stats.Converged = converged
	c.stats.Reseeded = reseeded
	return &c
}
