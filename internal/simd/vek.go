package simd

import "github.com/viterin/vek/vek32"

// vek32 panics on empty slices, so both kernels short-circuit them to match
// the generic path.

// squaredL2Vek squares the Euclidean distance computed by vek32.
func squaredL2Vek(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	d := vek32.Distance(a, b[:len(a)])
	return d * d
}

func dotNormsVek(a, b []float32) (dot, aa, bb float32) {
	if len(a) == 0 {
		return 0, 0, 0
	}
	b = b[:len(a)]
	return vek32.Dot(a, b), vek32.Dot(a, a), vek32.Dot(b, b)
}
