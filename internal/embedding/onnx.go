//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// modelInputs names the graph inputs in the order the tokenizer returns them.
var modelInputs = []string{"input_ids", "attention_mask", "token_type_ids"}

// sessionTensors holds the session's bound tensors. Inputs are rewritten in place
// before every run, so a session serves one query at a time.
type sessionTensors struct {
	inputs [3]*ort.Tensor[int64]
	output *ort.Tensor[float32]
}

func newSessionTensors(maxTokens, dim int) (*sessionTensors, error) {
	t := &sessionTensors{}
	shape := ort.NewShape(1, int64(maxTokens))
	for i, name := range modelInputs {
		tensor, err := ort.NewTensor(shape, make([]int64, maxTokens))
		if err != nil {
			t.destroy()
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		t.inputs[i] = tensor
	}
	out, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens), int64(dim)), make([]float32, maxTokens*dim))
	if err != nil {
		t.destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	t.output = out
	return t, nil
}

func (t *sessionTensors) load(ids, mask, types []int64) {
	copy(t.inputs[0].GetData(), ids)
	copy(t.inputs[1].GetData(), mask)
	copy(t.inputs[2].GetData(), types)
}

func (t *sessionTensors) bindings() (in, out []ort.ArbitraryTensor) {
	for _, tensor := range t.inputs {
		in = append(in, tensor)
	}
	return in, []ort.ArbitraryTensor{t.output}
}

func (t *sessionTensors) destroy() {
	for i, tensor := range t.inputs {
		if tensor != nil {
			_ = tensor.Destroy()
			t.inputs[i] = nil
		}
	}
	if t.output != nil {
		_ = t.output.Destroy()
		t.output = nil
	}
}

// ONNXEmbedder embeds scenario titles and queries with a sentence-transformer model
// (e.g. all-MiniLM-L6-v2) run through ONNX Runtime. Token states are mean-pooled over
// the attention mask and L2-normalized. Requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	opts      ONNXOptions
	tokenizer Tokenizer
	cache     *EmbeddingCache

	mu      sync.Mutex
	session *ort.AdvancedSession
	tensors *sessionTensors
}

// NewONNXEmbedder loads the model at opts.ModelPath.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	opts = opts.withDefaults()
	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	tokenizer, err := opts.newTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	tensors, err := newSessionTensors(opts.MaxTokens, opts.Dimensions)
	if err != nil {
		return nil, err
	}
	inputs, outputs := tensors.bindings()
	session, err := ort.NewAdvancedSession(opts.ModelPath, modelInputs, []string{opts.OutputName}, inputs, outputs, nil)
	if err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("failed to load model %s: %w", opts.ModelPath, err)
	}

	return &ONNXEmbedder{
		opts:      opts,
		tokenizer: tokenizer,
		cache:     NewEmbeddingCache(opts.CacheSize),
		session:   session,
		tensors:   tensors,
	}, nil
}

// Embed returns the normalized embedding for text. Results are cached by text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	vec, err := e.infer(text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec)
	return vec, nil
}

// infer runs one forward pass. Callers hold e.mu.
func (e *ONNXEmbedder) infer(text string) ([]float32, error) {
	if e.session == nil {
		return nil, fmt.Errorf("%w: embedder closed", ErrEncoding)
	}
	ids, mask, types := e.tokenizer.Tokenize(text, e.opts.MaxTokens)
	e.tensors.load(ids, mask, types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference failed: %v", ErrEncoding, err)
	}
	vec := meanPool(e.tensors.output.GetData(), mask, e.opts.Dimensions)
	NormalizeL2Slice(vec)
	if err := Validate(vec, e.opts.Dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds texts in order, stopping at the first failure or cancellation.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.opts.Dimensions
}

// Close releases the session. Later calls to Embed fail with ErrEncoding.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.tensors.destroy()
	return err
}
