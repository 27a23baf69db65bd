// Package extractor picks the sentences of a passage that best answer a
// question.
package extractor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"smartual/internal/chunker"
	"smartual/internal/domain"
	"smartual/internal/embedding"
)

const ellipsis = "..."

// Options tunes extraction. Zero fields take the defaults.
type Options struct {
	MaxSentences       int
	MinSentenceChars   int
	FallbackChars      int
	FallbackConfidence float64
}

// DefaultOptions returns the standard extraction settings.
func DefaultOptions() Options {
	return Options{MaxSentences: 3, MinSentenceChars: 10, FallbackChars: 200, FallbackConfidence: 0.5}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxSentences <= 0 {
		o.MaxSentences = d.MaxSentences
	}
	if o.MinSentenceChars <= 0 {
		o.MinSentenceChars = d.MinSentenceChars
	}
	if o.FallbackChars <= 0 {
		o.FallbackChars = d.FallbackChars
	}
	if o.FallbackConfidence <= 0 {
		o.FallbackConfidence = d.FallbackConfidence
	}
	return o
}

// Extractor is safe for concurrent use.
type Extractor struct {
	enc  embedding.Encoder
	opts Options
}

func New(enc embedding.Encoder, opts Options) *Extractor {
	return &Extractor{enc: enc, opts: opts.withDefaults()}
}

type scored struct {
	text  string
	score float64
}

// Extract returns the most relevant sentences of passage, best first, and
// the similarity of the best one. A passage with no usable sentences yields
// a truncated excerpt at the fallback confidence.
func (e *Extractor) Extract(ctx context.Context, question string, passage domain.Passage) (string, float64, error) {
	sentences := e.candidates(passage.Text)
	if len(sentences) == 0 {
		return e.fallback(passage.Text), e.opts.FallbackConfidence, nil
	}

	// The question and all sentences go out as one batch.
	texts := make([]string, 0, len(sentences)+1)
	texts = append(texts, question)
	texts = append(texts, sentences...)
	vecs, err := e.enc.Embed(ctx, texts)
	if err != nil {
		return "", 0, fmt.Errorf("extractor: embed sentences: %w", err)
	}
	if err := embedding.CheckBatch(texts, vecs, 0); err != nil {
		return "", 0, fmt.Errorf("extractor: %w", err)
	}

	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		ranked[i] = scored{text: s, score: embedding.Cosine(vecs[0], vecs[i+1])}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	top := ranked[:min(e.opts.MaxSentences, len(ranked))]
	if len(top) == 0 {
		return e.fallback(passage.Text), e.opts.FallbackConfidence, nil
	}

	parts := make([]string, len(top))
	for i, s := range top {
		parts[i] = strings.TrimSuffix(s.text, ".")
	}
	// A negative best similarity reports zero confidence.
	return chunker.JoinSentences(parts), clamp01(top[0].score), nil
}

// candidates splits text into sentences and drops short fragments.
func (e *Extractor) candidates(text string) []string {
	var out []string
	for _, s := range chunker.SplitSentences(text) {
		if utf8.RuneCountInString(s) >= e.opts.MinSentenceChars {
			out = append(out, s)
		}
	}
	return out
}

func (e *Extractor) fallback(text string) string {
	if utf8.RuneCountInString(text) > e.opts.FallbackChars {
		text = string([]rune(text)[:e.opts.FallbackChars])
	}
	return text + ellipsis
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
