package vector

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// IVFOptions configures an IVFIndex.
type IVFOptions struct {
	Dimensions int
	// NumLists is the number of coarse clusters (inverted lists).
	NumLists int
	// NumProbes is how many lists a search visits before it has k candidates.
	NumProbes int
	// TrainIterations bounds the k-means iterations.
	TrainIterations int
	// Seed makes training deterministic.
	Seed int64
}

func (o IVFOptions) withDefaults() IVFOptions {
	if o.NumLists <= 0 {
		o.NumLists = 100
	}
	if o.NumProbes <= 0 {
		o.NumProbes = 8
	}
	if o.NumProbes > o.NumLists {
		o.NumProbes = o.NumLists
	}
	if o.TrainIterations <= 0 {
		o.TrainIterations = 20
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	return o
}

// ivfEntry is the content of one storage slot.
type ivfEntry struct {
	id   int64
	list int
	pos  int       // position inside lists[list]
	code []byte    // SQ8 code once trained
	raw  []float32 // normalized vector while untrained
}

// IVFIndex is an inverted-file index with 8-bit scalar quantization, scored by inner product
// on normalized vectors. Until Train is called every entry lives in a single full-precision
// list and searches are exhaustive.
type IVFIndex struct {
	opts      IVFOptions
	state     IndexState
	centroids [][]float32
	codec     *scalarCodec
	slots     []ivfEntry
	slotByID  map[int64]int
	lists     [][]int // slot indices per list
	closed    bool
	mu        sync.RWMutex
}

// NewIVFIndex creates an empty, untrained IVF index.
func NewIVFIndex(opts IVFOptions) (*IVFIndex, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &IVFIndex{
		opts:     opts.withDefaults(),
		state:    StateUntrained,
		slotByID: make(map[int64]int),
		lists:    make([][]int, 1),
	}, nil
}

// Type returns the index type identifier.
func (x *IVFIndex) Type() string {
	return string(IndexTypeIVF)
}

// Dimensions returns the vector dimension.
func (x *IVFIndex) Dimensions() int {
	return x.opts.Dimensions
}

// Options returns the effective options.
func (x *IVFIndex) Options() IVFOptions {
	return x.opts
}

// Train fits the coarse centroids and the scalar codec from sample, then moves every
// entry added so far into its list. A sample smaller than NumLists is padded with seeded
// random unit vectors. Training an index that already holds entries after it was
// trained returns ErrAlreadyTrained.
func (x *IVFIndex) Train(ctx context.Context, sample [][]float32) error {
	dim := x.opts.Dimensions
	normalized := make([][]float32, 0, len(sample))
	for i, v := range sample {
		n, err := Normalized(v, dim)
		if err != nil {
			return fmt.Errorf("training vector %d: %w", i, err)
		}
		normalized = append(normalized, n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// k-means and the codec run without the lock; only the swap below is exclusive.
	rng := rand.New(rand.NewSource(x.opts.Seed))
	clusterInput := normalized
	if len(clusterInput) < x.opts.NumLists {
		pad := randomUnitVectors(x.opts.NumLists-len(clusterInput), dim, rng)
		clusterInput = append(append([][]float32(nil), normalized...), pad...)
	}
	centroids := sphericalKMeans(clusterInput, x.opts.NumLists, x.opts.TrainIterations, rng)
	codecInput := normalized
	if len(codecInput) == 0 {
		codecInput = clusterInput
	}
	codec := trainScalarCodec(codecInput, dim)

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	if x.state == StateTrained && len(x.slotByID) > 0 {
		return ErrAlreadyTrained
	}
	x.centroids = centroids
	x.codec = codec
	x.lists = make([][]int, len(centroids))
	for slot := range x.slots {
		e := &x.slots[slot]
		vec := e.raw
		if len(vec) == 0 {
			continue
		}
		e.code = codec.encode(vec)
		e.raw = nil
		e.list = nearestCentroid(vec, centroids)
		e.pos = len(x.lists[e.list])
		x.lists[e.list] = append(x.lists[e.list], slot)
	}
	x.state = StateTrained
	return nil
}

// Add normalizes vec and stores it under id. An existing entry for id keeps its slot
// and is replaced.
func (x *IVFIndex) Add(ctx context.Context, id int64, vec []float32) error {
	n, err := Normalized(vec, x.opts.Dimensions)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	list := 0
	var code []byte
	raw := n
	if x.state == StateTrained {
		list = nearestCentroid(n, x.centroids)
		code = x.codec.encode(n)
		raw = nil
	}

	slot, exists := x.slotByID[id]
	if exists {
		x.unlink(slot)
	} else {
		slot = len(x.slots)
		x.slots = append(x.slots, ivfEntry{id: id})
		x.slotByID[id] = slot
	}
	e := &x.slots[slot]
	e.code = code
	e.raw = raw
	e.list = list
	e.pos = len(x.lists[list])
	x.lists[list] = append(x.lists[list], slot)
	return nil
}

// unlink removes slot from its list in O(1) by moving the list's last slot into its place.
func (x *IVFIndex) unlink(slot int) {
	e := &x.slots[slot]
	postings := x.lists[e.list]
	last := len(postings) - 1
	moved := postings[last]
	postings[e.pos] = moved
	x.slots[moved].pos = e.pos
	x.lists[e.list] = postings[:last]
}

// Search returns up to k entries by descending inner product with the normalized query.
// Lists are probed in centroid order until NumProbes lists are visited and at least k
// candidates were scored, so an index with at most k entries returns all of them.
func (x *IVFIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	q, err := Normalized(query, x.opts.Dimensions)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrClosed
	}
	if len(x.slotByID) == 0 {
		return []*VectorResult{}, nil
	}

	top := newTopK(k)
	if x.state == StateUntrained {
		for _, slot := range x.lists[0] {
			top.push(slot, InnerProduct(q, x.slots[slot].raw))
		}
		return x.results(top), nil
	}

	table := x.codec.table(q)
	order := x.probeOrder(q)
	scored := 0
	for probed, list := range order {
		if probed >= x.opts.NumProbes && scored >= k {
			break
		}
		for _, slot := range x.lists[list] {
			top.push(slot, table.score(x.slots[slot].code))
			scored++
		}
	}
	return x.results(top), nil
}

// probeOrder returns list indices sorted by descending centroid similarity to q.
func (x *IVFIndex) probeOrder(q []float32) []int {
	scores := make([]float64, len(x.centroids))
	order := make([]int, len(x.centroids))
	for i, c := range x.centroids {
		scores[i] = InnerProduct(q, c)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order
}

func (x *IVFIndex) results(top *topK) []*VectorResult {
	hits := top.sorted()
	out := make([]*VectorResult, len(hits))
	for i, h := range hits {
		out[i] = &VectorResult{ID: x.slots[h.slot].id, Score: h.score}
	}
	return out
}

// Contains reports whether id has an entry.
func (x *IVFIndex) Contains(id int64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.slotByID[id]
	return ok
}

// Size returns the number of distinct IDs in the index.
func (x *IVFIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.slotByID)
}

// State returns the training state.
func (x *IVFIndex) State() IndexState {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.state
}

// ListSizes returns the number of entries in each inverted list.
func (x *IVFIndex) ListSizes() []int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	sizes := make([]int, len(x.lists))
	for i, l := range x.lists {
		sizes[i] = len(l)
	}
	return sizes
}

// Close releases the index; later calls fail with ErrClosed.
func (x *IVFIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.slots = nil
	x.lists = nil
	x.slotByID = map[int64]int{}
	return nil
}
