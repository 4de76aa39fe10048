package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/hyperjump/suggest/internal/embedding"
	"github.com/hyperjump/suggest/internal/vector"
)

const benchDim = 384

func randomVectors(n int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, benchDim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func buildIVF(b *testing.B, n int) *vector.IVFIndex {
	b.Helper()
	ctx := context.Background()
	idx, err := vector.NewIVFIndex(vector.IVFOptions{Dimensions: benchDim, NumLists: 64, NumProbes: 8})
	if err != nil {
		b.Fatal(err)
	}
	vecs := randomVectors(n, 1)
	if err := idx.Train(ctx, vecs[:min(n, 2000)]); err != nil {
		b.Fatal(err)
	}
	for i, v := range vecs {
		if err := idx.Add(ctx, int64(i+1), v); err != nil {
			b.Fatal(err)
		}
	}
	return idx
}

func BenchmarkIVFIndexSearch(b *testing.B) {
	for _, n := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			idx := buildIVF(b, n)
			defer idx.Close()
			query := randomVectors(1, 99)[0]
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = idx.Search(ctx, query, 10)
			}
		})
	}
}

func BenchmarkIVFIndexAdd(b *testing.B) {
	idx := buildIVF(b, 1000)
	defer idx.Close()
	vecs := randomVectors(1024, 7)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Add(ctx, int64(i%5000+1), vecs[i%len(vecs)])
	}
}

func BenchmarkIVFIndexTrain(b *testing.B) {
	sample := randomVectors(2000, 3)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx, _ := vector.NewIVFIndex(vector.IVFOptions{Dimensions: benchDim, NumLists: 64})
		_ = idx.Train(ctx, sample)
	}
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := vector.NewMemoryIndex(benchDim)
	ctx := context.Background()
	for i, v := range randomVectors(1000, 1) {
		_ = idx.Add(ctx, int64(i+1), v)
	}
	query := randomVectors(1, 99)[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(benchDim)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "user resets forgotten password from login page")
	}
}
