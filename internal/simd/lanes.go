package simd

// Lanes is the group width of the portable vectorized kernels.
const Lanes = 8

func squaredL2Lanes(a, b []float32) float32 {
	n := len(a)
	b = b[:n]

	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i+Lanes <= n; i += Lanes {
		x := a[i : i+Lanes : i+Lanes]
		y := b[i : i+Lanes : i+Lanes]
		d0, d1, d2, d3 := x[0]-y[0], x[1]-y[1], x[2]-y[2], x[3]-y[3]
		d4, d5, d6, d7 := x[4]-y[4], x[5]-y[5], x[6]-y[6], x[7]-y[7]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
		s4 += d4 * d4
		s5 += d5 * d5
		s6 += d6 * d6
		s7 += d7 * d7
	}

	sum := ((s0 + s1) + (s2 + s3)) + ((s4 + s5) + (s6 + s7))
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func dotNormsLanes(a, b []float32) (dot, aa, bb float32) {
	n := len(a)
	b = b[:n]

	var p, na, nb [Lanes]float32
	i := 0
	for ; i+Lanes <= n; i += Lanes {
		x := a[i : i+Lanes : i+Lanes]
		y := b[i : i+Lanes : i+Lanes]
		for j := range Lanes {
			p[j] += x[j] * y[j]
			na[j] += x[j] * x[j]
			nb[j] += y[j] * y[j]
		}
	}

	for j := range Lanes {
		dot += p[j]
		aa += na[j]
		bb += nb[j]
	}
	for ; i < n; i++ {
		dot += a[i] * b[i]
		aa += a[i] * a[i]
		bb += b[i] * b[i]
	}
	return dot, aa, bb
}
