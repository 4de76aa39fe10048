package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeIVF is the quantized inverted-file ANN index. Default.
	IndexTypeIVF IndexType = "ivf"
	// IndexTypeMemory uses exact brute-force search. Good for tests and small catalogs (<10k vectors).
	IndexTypeMemory IndexType = "memory"
)

// IndexOptions selects and configures a vector index.
type IndexOptions struct {
	Type       string
	Dimensions int
	NumLists   int
	NumProbes  int
	Seed       int64
}

// NewVectorIndex creates a vector index of the configured type.
// Supported types: "ivf" (default), "memory".
func NewVectorIndex(opts IndexOptions) (VectorIndex, error) {
	switch IndexType(opts.Type) {
	case IndexTypeIVF, "":
		return NewIVFIndex(IVFOptions{
			Dimensions: opts.Dimensions,
			NumLists:   opts.NumLists,
			NumProbes:  opts.NumProbes,
			Seed:       opts.Seed,
		})
	case IndexTypeMemory:
		return NewMemoryIndex(opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: ivf, memory)", opts.Type)
	}
}
