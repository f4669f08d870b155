package distance

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/veloxdb/veloxdb/internal/simd"
	"github.com/veloxdb/veloxdb/model"
)

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors
// with the scalar reference loop.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return simd.SquaredL2(a, b)
}

// SquaredL2Vec is the vectorized counterpart of SquaredL2.
func SquaredL2Vec(a, b []float32) float32 {
	return simd.SquaredL2Vec(a, b)
}

// Cosine calculates the cosine distance between two vectors with the scalar
// reference loop. Returns 1 if either vector has zero norm.
func Cosine(a, b []float32) float32 {
	return cosine(simd.DotNorms(a, b))
}

// CosineVec is the vectorized counterpart of Cosine.
func CosineVec(a, b []float32) float32 {
	return cosine(simd.DotNormsVec(a, b))
}

func cosine(dot, aa, bb float32) float32 {
	if aa == 0 || bb == 0 {
		return 1
	}
	return 1 - dot/(sqrt(aa)*sqrt(bb))
}

func sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	return m == MetricL2 || m == MetricCosine
}

// Code returns the on-disk metric code (0 = Euclidean, 1 = Cosine).
func (m Metric) Code() int32 {
	return int32(m)
}

// FromCode maps an on-disk metric code back to a Metric.
func FromCode(code int32) (Metric, error) {
	m := Metric(code)
	if !m.Valid() {
		return 0, model.Formatf("unknown metric code %d", code)
	}
	return m, nil
}

// ParseMetric parses a metric name. It accepts "eucl", "l2" and "euclidean"
// for MetricL2 and "cos" and "cosine" for MetricCosine, case-insensitively.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eucl", "l2", "euclidean":
		return MetricL2, nil
	case "cos", "cosine":
		return MetricCosine, nil
	default:
		return 0, model.InvalidParameterf("unknown metric %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	switch m {
	case MetricL2:
		return []byte("eucl"), nil
	case MetricCosine:
		return []byte("cos"), nil
	default:
		return nil, model.InvalidParameterf("unknown metric %d", int(m))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric and path.
func Provider(m Metric, vectorized bool) (Func, error) {
	switch m {
	case MetricL2:
		if vectorized {
			return SquaredL2Vec, nil
		}
		return SquaredL2, nil
	case MetricCosine:
		if vectorized {
			return CosineVec, nil
		}
		return Cosine, nil
	default:
		return nil, model.InvalidParameterf("unsupported metric: %v", m)
	}
}

// Engine computes distances with a switchable execution path.
//
// The toggle is safe to flip concurrently, but a Func obtained before a flip
// keeps the path it was bound to.
type Engine struct {
	vectorized atomic.Bool
}

// NewEngine creates an Engine with the vectorized path enabled or disabled.
func NewEngine(vectorized bool) *Engine {
	e := &Engine{}
	e.vectorized.Store(vectorized)
	return e
}

// SetVectorized switches between the vectorized and the scalar path.
func (e *Engine) SetVectorized(enabled bool) {
	e.vectorized.Store(enabled)
}

// Vectorized reports whether the vectorized path is active.
func (e *Engine) Vectorized() bool {
	return e.vectorized.Load()
}

// Func returns the distance function for m under the current path.
func (e *Engine) Func(m Metric) (Func, error) {
	return Provider(m, e.Vectorized())
}

// Distance computes the distance between a and b under m.
// Returns a DimensionMismatch error if the lengths differ.
func (e *Engine) Distance(m Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &model.ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	fn, err := e.Func(m)
	if err != nil {
		return 0, err
	}
	return fn(a, b), nil
}
