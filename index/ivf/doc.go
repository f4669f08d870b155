// Package ivf implements an inverted-file index: the corpus is partitioned
// by k-means into K clusters, each holding a centroid and a posting list of
// member ids.
//
// Posting lists are roaring bitmaps. They iterate in ascending id order, so
// scanning a cluster visits lower ids first.
//
// An Index is immutable once built or loaded. Vectors added to the corpus
// afterwards belong to no cluster until the index is rebuilt.
package ivf
