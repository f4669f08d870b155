// Package distance provides vector distance calculations.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (no square root)
//   - MetricCosine: 1 - cosine similarity, 1 when either vector has zero norm
//
// Both metrics have a scalar reference path and a vectorized path backed by
// internal/simd. An Engine selects between them at runtime; both paths agree
// up to floating-point rounding.
//
// # Usage
//
//	eng := distance.NewEngine(true)
//	d := eng.Distance(distance.MetricCosine, a, b)
//	fn := eng.Func(distance.MetricL2) // bind once for hot loops
package distance
