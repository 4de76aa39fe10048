package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// MemoryIndex is an exact brute-force index with the same upsert and normalization
// semantics as IVFIndex. Train only flips the state. Suitable for tests and small catalogs.
type MemoryIndex struct {
	dimensions int
	state      IndexState
	ids        []int64
	vectors    [][]float32
	slotByID   map[int64]int
	closed     bool
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		slotByID:   make(map[int64]int),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Train validates the sample and marks the index trained.
func (m *MemoryIndex) Train(ctx context.Context, sample [][]float32) error {
	for i, v := range sample {
		if _, err := Normalized(v, m.dimensions); err != nil {
			return fmt.Errorf("training vector %d: %w", i, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.state == StateTrained && len(m.ids) > 0 {
		return ErrAlreadyTrained
	}
	m.state = StateTrained
	return nil
}

// Add stores the normalized vector under id, overwriting any previous vector in place.
func (m *MemoryIndex) Add(ctx context.Context, id int64, vec []float32) error {
	n, err := Normalized(vec, m.dimensions)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if slot, ok := m.slotByID[id]; ok {
		m.vectors[slot] = n
		return nil
	}
	m.slotByID[id] = len(m.ids)
	m.ids = append(m.ids, id)
	m.vectors = append(m.vectors, n)
	return nil
}

// Search returns the top-k vectors by inner product with the normalized query.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	q, err := Normalized(query, m.dimensions)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	top := newTopK(k)
	for slot, vec := range m.vectors {
		top.push(slot, InnerProduct(q, vec))
	}
	hits := top.sorted()
	result := make([]*VectorResult, len(hits))
	for i, h := range hits {
		result[i] = &VectorResult{ID: m.ids[h.slot], Score: h.score}
	}
	return result, nil
}

// Contains reports whether id has an entry.
func (m *MemoryIndex) Contains(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.slotByID[id]
	return ok
}

// State returns the training state.
func (m *MemoryIndex) State() IndexState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Save persists the index to path. Directory is created if needed. Format: dimension (4), state (4),
// n (4), then per vector: id (8), vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	header := []uint32{uint32(m.dimensions), uint32(m.state), uint32(len(m.ids))}
	if err := binary.Write(f, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, id := range m.ids {
		if err := binary.Write(f, binary.LittleEndian, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	header := make([]uint32, 3)
	if err := binary.Read(f, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if int(header[0]) != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, header[0], m.dimensions)
	}
	n := int(header[2])
	ids := make([]int64, 0, n)
	vectors := make([][]float32, 0, n)
	slotByID := make(map[int64]int, n)
	buf := make([]byte, m.dimensions*4)
	for i := 0; i < n; i++ {
		var id int64
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		if _, dup := slotByID[id]; dup {
			return fmt.Errorf("%w: id %d appears twice", ErrCorruptSnapshot, id)
		}
		slotByID[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = IndexState(header[1])
	m.ids = ids
	m.vectors = vectors
	m.slotByID = slotByID
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close releases the index; later calls fail with ErrClosed.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.ids = nil
	m.vectors = nil
	m.slotByID = map[int64]int{}
	return nil
}
