package kmeans

import (
	"context"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/model"
)

// seedStream is the second PCG word; the caller controls the first.
const seedStream = 0x9e3779b97f4a7c15

// minChunk is the smallest number of rows handed to one assignment worker.
const minChunk = 1024

// Matrix is a read-only row-addressable set of equal-length vectors.
type Matrix interface {
	Len() int
	Dimension() int
	Row(i int) []float32
}

// Config controls a training run.
type Config struct {
	K        int    // Number of clusters, 0 < K <= rows.
	MaxIters int    // Upper bound on assignment rounds, >= 1.
	Seed     uint64 // Seed for initial centroid selection.
	Workers  int    // Assignment parallelism; <= 0 means GOMAXPROCS.
}

// Result holds trained centroids and the final membership.
type Result struct {
	K           int
	Dim         int
	Centroids   []float32 // Flattened, K * Dim.
	Assignments []int     // Row -> cluster.
	Iterations  int       // Rounds actually run.
	Converged   bool      // True if a round changed no membership.
	Reseeded    int       // Empty clusters reseeded over all rounds.
}

// Centroid returns the j-th centroid without copying.
func (r *Result) Centroid(j int) []float32 {
	return r.Centroids[j*r.Dim : (j+1)*r.Dim : (j+1)*r.Dim]
}

// Counts returns the member count of every cluster.
func (r *Result) Counts() []int {
	counts := make([]int, r.K)
	for _, c := range r.Assignments {
		counts[c]++
	}
	return counts
}

// Train clusters data into cfg.K groups under dist.
func Train(ctx context.Context, data Matrix, cfg Config, dist distance.Func) (*Result, error) {
	n, dim := data.Len(), data.Dimension()
	if n == 0 {
		return nil, model.ErrEmptyStore
	}
	if cfg.K <= 0 || cfg.K > n {
		return nil, model.InvalidParameterf("cluster count must be in [1, %d], got %d", n, cfg.K)
	}
	if cfg.MaxIters < 1 {
		return nil, model.InvalidParameterf("max iterations must be at least 1, got %d", cfg.MaxIters)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	k := cfg.K
	centroids := make([]float32, k*dim)
	rng := rand.New(rand.NewPCG(cfg.Seed, seedStream)) //nolint:gosec // reproducibility, not security
	for j, idx := range rng.Perm(n)[:k] {
		copy(centroids[j*dim:], data.Row(idx))
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	next := make([]int, n)
	dists := make([]float32, n)
	counts := make([]int, k)
	sums := make([]float64, k*dim)

	res := &Result{K: k, Dim: dim, Centroids: centroids}

	for iter := range cfg.MaxIters {
		if err := assignAll(ctx, data, centroids, dim, dist, next, dists, workers); err != nil {
			return nil, err
		}

		clear(counts)
		for _, c := range next {
			counts[c]++
		}
		res.Reseeded += reseed(data, centroids, dim, next, dists, counts)
		res.Iterations = iter + 1

		if slices.Equal(assign, next) {
			res.Converged = true
			break
		}

		assign, next = next, assign
		update(data, centroids, dim, assign, counts, sums)
	}

	res.Assignments = assign
	return res, nil
}

// Nearest returns the index of the centroid closest to v and its distance.
// Ties go to the lowest index.
func Nearest(v, centroids []float32, dim int, dist distance.Func) (int, float32) {
	best, bestDist := -1, float32(0)
	for j, lo := 0, 0; lo < len(centroids); j, lo = j+1, lo+dim {
		d := dist(v, centroids[lo:lo+dim:lo+dim])
		if best < 0 || d < bestDist {
			best, bestDist = j, d
		}
	}
	return best, bestDist
}

func assignAll(ctx context.Context, data Matrix, centroids []float32, dim int, dist distance.Func, out []int, dists []float32, workers int) error {
	n := data.Len()
	chunk := max((n+workers-1)/workers, minChunk)

	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				out[i], dists[i] = Nearest(data.Row(i), centroids, dim, dist)
			}
			return nil
		})
	}
	return g.Wait()
}

// reseed fills every empty cluster with the row farthest from its assigned
// centroid, taken from a cluster that keeps at least one other member.
// It returns the number of clusters reseeded.
func reseed(data Matrix, centroids []float32, dim int, assign []int, dists []float32, counts []int) int {
	reseeded := 0
	for j := range counts {
		if counts[j] > 0 {
			continue
		}

		far := -1
		for i, d := range dists {
			if counts[assign[i]] > 1 && (far < 0 || d > dists[far]) {
				far = i
			}
		}
		if far < 0 {
			// Unreachable while K <= rows.
			continue
		}

		counts[assign[far]]--
		assign[far] = j
		counts[j] = 1
		dists[far] = 0
		copy(centroids[j*dim:(j+1)*dim], data.Row(far))
		reseeded++
	}
	return reseeded
}

// update sets every centroid to the component-wise mean of its members.
func update(data Matrix, centroids []float32, dim int, assign, counts []int, sums []float64) {
	clear(sums)
	for i, c := range assign {
		s := sums[c*dim : (c+1)*dim]
		for d, v := range data.Row(i) {
			s[d] += float64(v)
		}
	}

	for j, c := range counts {
		if c == 0 {
			continue
		}
		inv := 1 / float64(c)
		for d := range dim {
			centroids[j*dim+d] = float32(sums[j*dim+d] * inv)
		}
	}
}
