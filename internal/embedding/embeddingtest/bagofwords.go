// Package embeddingtest provides a deterministic encoder for tests.
package embeddingtest

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"smartual/internal/embedding"
)

// BagOfWords counts vocabulary words and L2-normalizes the counts.
// Words outside the vocabulary are ignored. It records every Embed batch.
type BagOfWords struct {
	mu      sync.Mutex
	vocab   map[string]int
	words   []string
	batches [][]string
	// Err, when set, is returned by Embed.
	Err error
}

// NewBagOfWords builds an encoder over a fixed vocabulary. With no words,
// the vocabulary is taken from the Prepare corpus.
func NewBagOfWords(words ...string) *BagOfWords {
	b := &BagOfWords{vocab: make(map[string]int)}
	for _, w := range words {
		b.add(w)
	}
	return b
}

func (b *BagOfWords) add(w string) {
	if _, ok := b.vocab[w]; ok {
		return
	}
	b.vocab[w] = len(b.words)
	b.words = append(b.words, w)
}

func (b *BagOfWords) Name() string { return "bow" }

func (b *BagOfWords) ModelInfo() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return "bow-" + strings.Join(b.words, ",")
}

func (b *BagOfWords) Prepare(corpus []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.words) > 0 {
		return nil
	}
	for _, text := range corpus {
		for _, w := range Tokens(text) {
			b.add(w)
		}
	}
	return nil
}

func (b *BagOfWords) Dimension() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.words)
}

func (b *BagOfWords) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	b.batches = append(b.batches, append([]string(nil), texts...))
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, len(b.words))
		for _, w := range Tokens(text) {
			if j, ok := b.vocab[w]; ok {
				v[j]++
			}
		}
		embedding.Normalize(v)
		out[i] = v
	}
	return out, nil
}

// Batches returns a copy of every batch passed to Embed so far.
func (b *BagOfWords) Batches() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.batches...)
}

// Tokens lowercases text and splits it on anything but letters and digits.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
