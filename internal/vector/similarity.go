package vector

import (
	"fmt"
	"math"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalized returns a unit-length copy of x after checking its dimension.
func Normalized(x []float32, dim int) ([]float32, error) {
	if len(x) != dim {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(x), dim)
	}
	norm := L2Norm(x)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrZeroVector
	}
	out := make([]float32, dim)
	inv := 1 / norm
	for i, v := range x {
		out[i] = float32(float64(v) * inv)
	}
	return out, nil
}
