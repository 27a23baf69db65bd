package retriever

import (
	"context"
	"fmt"

	"smartual/internal/domain"
	"smartual/internal/embedding"
	"smartual/internal/vectorstore"
)

// DefaultTopK is the number of passages returned when k is not given.
const DefaultTopK = 3

// Retriever ranks passages by L2 distance in the index and reports cosine
// similarity as the score. The two orders can disagree slightly.
type Retriever struct {
	index *vectorstore.Index
	enc   embedding.Encoder
	topK  int
}

func New(index *vectorstore.Index, enc embedding.Encoder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, enc: enc, topK: topK}
}

// Retrieve embeds question and returns its nearest passages, nearest first.
// A non-positive k uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]domain.Retrieved, error) {
	q, err := embedding.EmbedOne(ctx, r.enc, question)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed question: %w", err)
	}
	return r.RetrieveVector(ctx, q, k)
}

// RetrieveVector is Retrieve for an already embedded question.
func (r *Retriever) RetrieveVector(ctx context.Context, q []float64, k int) ([]domain.Retrieved, error) {
	if k <= 0 {
		k = r.topK
	}
	nn, err := r.index.Search(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("retriever: search: %w", err)
	}
	out := make([]domain.Retrieved, len(nn))
	for i, n := range nn {
		out[i] = domain.Retrieved{
			Passage:  r.index.Passage(n.Position),
			Score:    embedding.Cosine(q, r.index.Vector(n.Position)),
			Distance: n.Distance,
		}
	}
	return out, nil
}
