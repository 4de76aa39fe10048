package embedding

import (
	"errors"
	"os"
	"path/filepath"
)

// ONNXOptions configures an ONNXEmbedder.
type ONNXOptions struct {
	ModelPath string
	// LibraryPath is the onnxruntime shared library; empty uses the platform default.
	LibraryPath string
	// VocabPath is the model's WordPiece vocab.txt. Empty looks for vocab.txt next to the model.
	VocabPath string
	// OutputName is the token-state output of the model graph.
	OutputName string
	Dimensions int
	MaxTokens  int
	CacheSize  int
}

func (o ONNXOptions) withDefaults() ONNXOptions {
	if o.OutputName == "" {
		o.OutputName = "last_hidden_state"
	}
	if o.Dimensions <= 0 {
		o.Dimensions = 384
	}
	if o.MaxTokens <= 2 {
		o.MaxTokens = 128
	}
	return o
}

// newTokenizer loads the WordPiece vocabulary for the model. Without a vocabulary file the
// hash-based SimpleTokenizer is used, which keeps the pipeline running but does not match
// the IDs the model was trained on.
func (o ONNXOptions) newTokenizer() (Tokenizer, error) {
	if o.VocabPath != "" {
		return LoadWordPieceTokenizer(o.VocabPath)
	}
	if o.ModelPath != "" {
		candidate := filepath.Join(filepath.Dir(o.ModelPath), "vocab.txt")
		if _, err := os.Stat(candidate); err == nil {
			return LoadWordPieceTokenizer(candidate)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return &SimpleTokenizer{}, nil
}

// meanPool averages the token states of the attended positions. states is laid out
// as [tokens][dim]; the result has length dim.
func meanPool(states []float32, attentionMask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var count float32
	for t, m := range attentionMask {
		if m == 0 {
			continue
		}
		row := states[t*dim : (t+1)*dim]
		for i, v := range row {
			out[i] += v
		}
		count++
	}
	if count > 0 {
		for i := range out {
			out[i] /= count
		}
	}
	return out
}
