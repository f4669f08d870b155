// Package searcher answers nearest-neighbor queries over a corpus.
//
// Without an index every stored vector is compared against the query.
// With an IVF index only the members of the cluster whose centroid is
// nearest to the query are compared; vectors added after the index was
// built are not members of any cluster and are not visited.
//
// Results are ordered by ascending distance, ties by ascending id.
package searcher
