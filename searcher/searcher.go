package searcher

import (
	"context"
	"sync"

	"github.com/veloxdb/veloxdb/distance"
	"github.com/veloxdb/veloxdb/index/ivf"
	"github.com/veloxdb/veloxdb/model"
)

// checkEvery is the number of distance computations between context checks.
const checkEvery = 4096

// Corpus is the read-only view of stored vectors a search scans.
type Corpus interface {
	Len() int
	Dimension() int
	Row(i int) []float32
}

// Searcher is a reusable execution context for a single query.
// It owns the candidate queue so steady-state searches do not allocate it.
//
// Searcher is NOT thread-safe.
type Searcher struct {
	Candidates *Queue

	// Scanned counts vectors compared against the query.
	Scanned int
}

var searcherPool = sync.Pool{
	New: func() any {
		return &Searcher{Candidates: NewQueue(16)}
	},
}

// AcquireSearcher retrieves a Searcher from the pool prepared for k results.
func AcquireSearcher(k int) *Searcher {
	s := searcherPool.Get().(*Searcher)
	s.Candidates.Reset(k)
	s.Scanned = 0
	return s
}

// ReleaseSearcher returns the Searcher to the pool.
func ReleaseSearcher(s *Searcher) {
	s.Candidates.Reset(0)
	searcherPool.Put(s)
}

// Search returns the stored vector nearest to query.
//
// idx may be nil, in which case the whole corpus is scanned.
func Search(ctx context.Context, corpus Corpus, idx *ivf.Index, query []float32, fn distance.Func) (model.Result, error) {
	res, err := SearchK(ctx, corpus, idx, query, 1, fn)
	if err != nil {
		return model.Result{}, err
	}
	return res[0], nil
}

// SearchK returns up to k stored vectors nearest to query, best first.
func SearchK(ctx context.Context, corpus Corpus, idx *ivf.Index, query []float32, k int, fn distance.Func) ([]model.Result, error) {
	n := corpus.Len()
	if n == 0 {
		return nil, model.ErrEmptyStore
	}
	if dim := corpus.Dimension(); len(query) != dim {
		return nil, &model.ErrDimensionMismatch{Expected: dim, Actual: len(query)}
	}
	if k <= 0 {
		return nil, model.InvalidParameterf("k must be positive, got %d", k)
	}

	s := AcquireSearcher(k)
	defer ReleaseSearcher(s)

	cluster := -1
	if idx != nil {
		cluster, _ = idx.Probe(query, fn)
		if err := s.scanCluster(ctx, corpus, idx, cluster, query, fn); err != nil {
			return nil, err
		}
	}
	if s.Candidates.Len() == 0 {
		// No index, or the probed cluster holds no stored vector.
		cluster = -1
		if err := s.scanAll(ctx, corpus, query, fn); err != nil {
			return nil, err
		}
	}

	items := s.Candidates.Drain()
	out := make([]model.Result, len(items))
	for i, it := range items {
		out[i] = model.Result{ID: it.ID, Distance: it.Distance, Cluster: cluster, Scanned: s.Scanned}
	}
	return out, nil
}

func (s *Searcher) scanAll(ctx context.Context, corpus Corpus, query []float32, fn distance.Func) error {
	for i := range corpus.Len() {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		s.Candidates.Push(Item{ID: model.ID(i), Distance: fn(query, corpus.Row(i))}) //nolint:gosec // corpus ids fit uint32
		s.Scanned++
	}
	return nil
}

func (s *Searcher) scanCluster(ctx context.Context, corpus Corpus, idx *ivf.Index, cluster int, query []float32, fn distance.Func) error {
	n := corpus.Len()
	it := idx.Members(cluster).Iterator()
	for it.HasNext() {
		id := it.Next()
		if int64(id) >= int64(n) {
			break
		}
		if s.Scanned%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		s.Candidates.Push(Item{ID: model.ID(id), Distance: fn(query, corpus.Row(int(id)))})
		s.Scanned++
	}
	return nil
}
