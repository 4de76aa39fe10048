package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const (
	maxWordRunes    = 100
	subwordPrefix   = "##"
	unknownToken    = "[UNK]"
	classifierToken = "[CLS]"
	separatorToken  = "[SEP]"
)

// WordPieceTokenizer splits words into the longest matching pieces of a BERT vocabulary
// (vocab.txt, one token per line, line number = token ID). Text is lowercased, so it fits
// uncased models such as all-MiniLM-L6-v2.
type WordPieceTokenizer struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
}

// LoadWordPieceTokenizer reads a vocab.txt file.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if _, seen := vocab[token]; !seen {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return NewWordPieceTokenizer(vocab)
}

// NewWordPieceTokenizer builds a tokenizer from token -> ID. The vocabulary must contain
// [CLS], [SEP] and [UNK].
func NewWordPieceTokenizer(vocab map[string]int64) (*WordPieceTokenizer, error) {
	t := &WordPieceTokenizer{vocab: vocab}
	for _, special := range []struct {
		token string
		dst   *int64
	}{
		{classifierToken, &t.cls},
		{separatorToken, &t.sep},
		{unknownToken, &t.unk},
	} {
		id, ok := vocab[special.token]
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", special.token)
		}
		*special.dst = id
	}
	return t, nil
}

// Tokenize produces [CLS] pieces... [SEP] padded with zeros to maxTokens.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = t.cls
	attentionMask[0] = 1
	pos := 1
fill:
	for _, word := range SplitWords(strings.ToLower(text)) {
		for _, id := range t.pieces(word) {
			if pos >= maxTokens-1 {
				break fill
			}
			inputIDs[pos] = id
			attentionMask[pos] = 1
			pos++
		}
	}
	inputIDs[pos] = t.sep
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// pieces splits word greedily into the longest vocabulary prefixes. A word with any
// unmatched remainder becomes a single [UNK].
func (t *WordPieceTokenizer) pieces(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []int64{t.unk}
	}
	var ids []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		matched := false
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = subwordPrefix + piece
			}
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, id)
				matched = true
				break
			}
		}
		if !matched {
			return []int64{t.unk}
		}
		start = end
	}
	return ids
}
