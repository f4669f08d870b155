// Package server exposes a veloxdb.VectorIndex over HTTP with JSON bodies.
//
// Routes:
//
//	GET  /               health
//	POST /add_vectors    {"vector": [...]}
//	POST /train          {"num_clusters": K, "max_iters": N, "metric": "eucl"}
//	POST /search         {"query_vector": [...], "metric": "cos", "k": 1}
//	POST /save           write <data_dir>/vectors.fvecs and index.ivf
//	GET  /vectors/{id}
//	POST /simd           {"enabled": false}
//	GET  /stats
//	GET  /metrics        Prometheus exposition
//
// Failures carry {"detail": "..."} with 400 for dimension mismatches,
// invalid parameters and an empty store, 404 for unknown ids and 500
// otherwise.
package server
