package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
)

// MockEmbedder is a deterministic embedder for tests and development. Each word
// maps to a seeded pseudo-random vector and a text embeds as the normalized sum of
// its word vectors, so texts sharing words land close together and identical texts
// get identical embeddings.
type MockEmbedder struct {
	dimensions int
	mu         sync.RWMutex
	failOn     map[string]error
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions, failOn: make(map[string]error)}
}

// FailOn makes Embed return an error for each of the given texts.
func (e *MockEmbedder) FailOn(texts ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range texts {
		e.failOn[t] = fmt.Errorf("%w: mock failure for %q", ErrEncoding, t)
	}
}

// Embed returns the deterministic embedding of text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	failErr := e.failOn[text]
	e.mu.RUnlock()
	if failErr != nil {
		return nil, failErr
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		words = []string{text}
	}
	emb := make([]float32, e.dimensions)
	for _, w := range words {
		rng := rand.New(rand.NewSource(int64(hashWord(w))))
		for i := range emb {
			emb[i] += float32(rng.NormFloat64())
		}
	}
	NormalizeL2Slice(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text and fails on the first error.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

func hashWord(w string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(w))
	return h.Sum64()
}
