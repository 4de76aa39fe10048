package embedding

import (
	"os"
	"path/filepath"
	"testing"
)

func TestONNXOptions_Defaults(t *testing.T) {
	o := ONNXOptions{ModelPath: "m.onnx"}.withDefaults()
	if o.OutputName != "last_hidden_state" || o.Dimensions != 384 || o.MaxTokens != 128 {
		t.Errorf("unexpected defaults: %+v", o)
	}
	o = ONNXOptions{OutputName: "sentence_embedding", Dimensions: 8, MaxTokens: 16}.withDefaults()
	if o.OutputName != "sentence_embedding" || o.Dimensions != 8 || o.MaxTokens != 16 {
		t.Errorf("explicit values overridden: %+v", o)
	}
}

func TestMeanPool(t *testing.T) {
	states := []float32{
		1, 2, // token 0
		3, 4, // token 1
		100, 100, // padding
	}
	got := meanPool(states, []int64{1, 1, 0}, 2)
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("meanPool = %v, want [2 3]", got)
	}
	if got := meanPool(states, []int64{0, 0, 0}, 2); got[0] != 0 || got[1] != 0 {
		t.Errorf("meanPool with empty mask = %v, want zeros", got)
	}
}

func TestONNXOptions_NewTokenizer(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.onnx")

	tok, err := ONNXOptions{ModelPath: model}.newTokenizer()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tok.(*SimpleTokenizer); !ok {
		t.Errorf("without vocab.txt: got %T, want *SimpleTokenizer", tok)
	}

	vocab := "[PAD]\n[UNK]\n[CLS]\n[SEP]\nlogin\n"
	if err := os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte(vocab), 0644); err != nil {
		t.Fatal(err)
	}
	tok, err = ONNXOptions{ModelPath: model}.newTokenizer()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tok.(*WordPieceTokenizer); !ok {
		t.Errorf("vocab.txt next to model: got %T, want *WordPieceTokenizer", tok)
	}

	if _, err := (ONNXOptions{ModelPath: model, VocabPath: filepath.Join(dir, "missing.txt")}).newTokenizer(); err == nil {
		t.Error("explicit missing vocabulary should fail")
	}
}
