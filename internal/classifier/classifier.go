// Package classifier assigns a question to the manual section whose example
// questions it most resembles on average.
package classifier

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"smartual/internal/domain"
	"smartual/internal/embedding"
)

// NoScore is returned with an empty section when nothing can be classified.
const NoScore = -1.0

// Score is the mean example similarity of one section.
type Score struct {
	Section string  `json:"section"`
	Score   float64 `json:"score"`
}

type section struct {
	name string
	vecs [][]float64
}

// Classifier holds precomputed example embeddings. It is read-only after New.
type Classifier struct {
	enc      embedding.Encoder
	sections []section
}

// New embeds every section's examples, one batch per section, in parallel.
// Sections without examples cannot be scored and are left out.
func New(ctx context.Context, enc embedding.Encoder, examples []domain.ExampleSet) (*Classifier, error) {
	sections := make([]section, len(examples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ex := range examples {
		sections[i].name = ex.Section
		if len(ex.Questions) == 0 {
			continue
		}
		g.Go(func() error {
			vecs, err := enc.Embed(gctx, ex.Questions)
			if err != nil {
				return fmt.Errorf("classifier: embed examples for %q: %w", ex.Section, err)
			}
			if err := embedding.CheckBatch(ex.Questions, vecs, 0); err != nil {
				return fmt.Errorf("classifier: %q: %w", ex.Section, err)
			}
			sections[i].vecs = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	kept := sections[:0]
	for _, s := range sections {
		if len(s.vecs) > 0 {
			kept = append(kept, s)
		}
	}
	return &Classifier{enc: enc, sections: kept}, nil
}

// Sections returns the number of sections that can be scored.
func (c *Classifier) Sections() int { return len(c.sections) }

// Classify embeds the question and returns the best section and its score.
// With no example sets it returns ("", NoScore).
func (c *Classifier) Classify(ctx context.Context, question string) (string, float64, error) {
	if len(c.sections) == 0 {
		return "", NoScore, nil
	}
	q, err := embedding.EmbedOne(ctx, c.enc, question)
	if err != nil {
		return "", NoScore, fmt.Errorf("classifier: embed question: %w", err)
	}
	name, score := c.ClassifyVector(q)
	return name, score, nil
}

// ClassifyVector picks the section with the highest mean cosine similarity
// to q. Ties keep the earlier section.
func (c *Classifier) ClassifyVector(q []float64) (string, float64) {
	best, bestScore := "", NoScore
	for _, s := range c.Scores(q) {
		if s.Score > bestScore {
			best, bestScore = s.Section, s.Score
		}
	}
	return best, bestScore
}

// Scores returns every section's mean similarity to q, in example-set order.
func (c *Classifier) Scores(q []float64) []Score {
	out := make([]Score, len(c.sections))
	for i, s := range c.sections {
		sum := 0.0
		for _, v := range s.vecs {
			sum += embedding.Cosine(q, v)
		}
		out[i] = Score{Section: s.name, Score: sum / float64(len(s.vecs))}
	}
	return out
}
