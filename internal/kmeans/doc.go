// Package kmeans implements Lloyd's k-means clustering for IVF training.
//
// Training is reproducible: initial centroids are K distinct corpus rows
// drawn with a seeded PCG generator, assignment ties go to the lowest
// cluster index, and the parallel assignment step writes disjoint ranges so
// the worker count never changes the outcome.
//
// A cluster left empty by an assignment round is reseeded with the corpus
// row farthest from its assigned centroid, so every cluster keeps at least
// one member.
package kmeans
