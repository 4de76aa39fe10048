// Package embedding turns scenario text into fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrEncoding wraps every failure to produce an embedding. Callers use errors.Is.
var ErrEncoding = errors.New("encoding failed")

// Embedder produces vector embeddings for text. Implementations are deterministic
// for a fixed model and may block on CPU-bound inference.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Validate checks that vec is a usable embedding of dimension dim: right length,
// finite values, and not all zeros. The returned error wraps ErrEncoding.
func Validate(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d dimensions, expected %d", ErrEncoding, len(vec), dim)
	}
	var sum float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value in embedding", ErrEncoding)
		}
		sum += f * f
	}
	if sum == 0 {
		return fmt.Errorf("%w: zero embedding", ErrEncoding)
	}
	return nil
}

// Encode embeds text with e and validates the result.
func Encode(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vec, err := e.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, ErrEncoding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if err := Validate(vec, e.Dimensions()); err != nil {
		return nil, err
	}
	return vec, nil
}

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}
