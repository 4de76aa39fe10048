package indexsync

import "math/rand"

// reservoir keeps a uniform random sample of at most size vectors from a stream.
type reservoir struct {
	size  int
	seen  int
	items [][]float32
	rng   *rand.Rand
}

func newReservoir(size int, seed int64) *reservoir {
	return &reservoir{size: size, rng: rand.New(rand.NewSource(seed))}
}

func (r *reservoir) offer(vec []float32) {
	r.seen++
	if r.size <= 0 {
		return
	}
	if len(r.items) < r.size {
		r.items = append(r.items, vec)
		return
	}
	if j := r.rng.Intn(r.seen); j < r.size {
		r.items[j] = vec
	}
}
