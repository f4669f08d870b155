// Package simd provides the float32 kernels behind the distance package.
//
// Every kernel exists in two flavours:
//
//   - Reference: plain component-wise accumulation (SquaredL2, DotNorms).
//   - Vectorized: components processed in fixed-width groups with the
//     remainder handled by the reference loop (SquaredL2Vec, DotNormsVec).
//
// The vectorized flavour is bound once at init. On x86-64 with AVX2+FMA it
// uses the vek32 assembly kernels; everywhere else it uses a portable
// 8-lane blocked kernel with independent accumulators.
//
// Set VELOXDB_SIMD=generic to force the portable kernel.
package simd
