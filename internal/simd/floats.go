package simd

var (
	squaredL2VecImpl = squaredL2Lanes
	dotNormsVecImpl  = dotNormsLanes
)

// bindKernels selects the vectorized implementations for isa.
func bindKernels(isa ISA) {
	switch isa {
	case AVX2:
		squaredL2VecImpl = squaredL2Vek
		dotNormsVecImpl = dotNormsVek
	default:
		squaredL2VecImpl = squaredL2Lanes
		dotNormsVecImpl = dotNormsLanes
	}
}

// SquaredL2 calculates the squared L2 distance with the reference loop.
//
// SAFETY: This function assumes len(a) == len(b).
func SquaredL2(a, b []float32) float32 {
	b = b[:len(a)]
	var distance float32
	for i := range a {
		d := a[i] - b[i]
		distance += d * d
	}
	return distance
}

// DotNorms returns dot(a,b), dot(a,a) and dot(b,b) with the reference loop.
//
// SAFETY: This function assumes len(a) == len(b).
func DotNorms(a, b []float32) (dot, aa, bb float32) {
	b = b[:len(a)]
	for i := range a {
		dot += a[i] * b[i]
		aa += a[i] * a[i]
		bb += b[i] * b[i]
	}
	return dot, aa, bb
}

// SquaredL2Vec calculates the squared L2 distance with the vectorized kernel.
//
// SAFETY: This function assumes len(a) == len(b).
func SquaredL2Vec(a, b []float32) float32 {
	return squaredL2VecImpl(a, b)
}

// DotNormsVec returns dot(a,b), dot(a,a) and dot(b,b) with the vectorized kernel.
//
// SAFETY: This function assumes len(a) == len(b).
func DotNormsVec(a, b []float32) (dot, aa, bb float32) {
	return dotNormsVecImpl(a, b)
}
