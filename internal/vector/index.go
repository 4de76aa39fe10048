// Package vector provides the approximate nearest-neighbor index over scenario embeddings.
package vector

import (
	"context"
	"errors"
)

// VectorIndex stores one normalized vector per external ID and answers inner-product
// (cosine) similarity queries. Add and Search may be called concurrently; Search never
// observes a partially written entry.
type VectorIndex interface {
	// Train fits the index's quantization parameters from a representative sample.
	Train(ctx context.Context, sample [][]float32) error
	// Add inserts vec under id, replacing any previous vector for id.
	Add(ctx context.Context, id int64, vec []float32) error
	// Search returns up to k entries by descending similarity.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Contains(id int64) bool
	Size() int
	State() IndexState
	Dimensions() int
	Type() string
	Save(path string) error
	Load(path string) error
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    int64
	Score float64 // inner product of normalized vectors (cosine similarity)
}

// IndexState is the training lifecycle of an index.
type IndexState int

const (
	// StateUntrained accepts inserts and searches them exhaustively in full precision.
	StateUntrained IndexState = iota
	// StateTrained has fitted quantization parameters; inserts are encoded.
	StateTrained
)

func (s IndexState) String() string {
	switch s {
	case StateUntrained:
		return "untrained"
	case StateTrained:
		return "trained"
	default:
		return "unknown"
	}
}

var (
	// ErrDimensionMismatch is returned when a vector does not have the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrZeroVector is returned for vectors that cannot be normalized.
	ErrZeroVector = errors.New("zero vector cannot be normalized")
	// ErrInvalidK is returned when a search asks for a non-positive number of results.
	ErrInvalidK = errors.New("k must be positive")
	// ErrAlreadyTrained is returned when Train is called on an index that already holds entries.
	ErrAlreadyTrained = errors.New("index already trained and not empty")
	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index closed")
	// ErrCorruptSnapshot is returned by Load when a snapshot file is internally inconsistent.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")
)
