package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"smartual/internal/domain"
	"smartual/internal/embedding"
)

// Storage persists vectors and supports nearest-neighbor search by squared
// Euclidean distance. Vectors are addressed by insertion position.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	// Upsert appends vectors; the first gets position Len() before the call.
	Upsert(ctx context.Context, vectors [][]float64) error
	// Search returns up to k neighbors by ascending distance, ties broken by
	// lower position.
	Search(ctx context.Context, vector []float64, k int) ([]domain.Neighbor, error)
	Clear(ctx context.Context) error
}

// Dropper is implemented by storages created for a single build. Drop
// releases the backing resources once no snapshot serves from them.
type Dropper interface {
	Drop(ctx context.Context) error
}

// Index couples a Storage with the passages its positions refer to.
// An Index is immutable after Build and safe for concurrent search.
type Index struct {
	store     Storage
	passages  []domain.Passage
	vectors   [][]float64
	dimension int
}

// Build embeds passages in one batch and loads them into st, in order.
func Build(ctx context.Context, st Storage, passages []domain.Passage, enc embedding.Encoder) (*Index, error) {
	if len(passages) == 0 {
		return nil, domain.ErrNoPassages
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vecs, err := enc.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed passages: %w", err)
	}
	if err := embedding.CheckBatch(texts, vecs, 0); err != nil {
		return nil, err
	}
	dim := len(vecs[0])
	if err := embedding.CheckBatch(texts, vecs, dim); err != nil {
		return nil, err
	}
	if err := st.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear store: %w", err)
	}
	if err := st.Init(ctx, dim); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Upsert(ctx, vecs); err != nil {
		return nil, fmt.Errorf("upsert passages: %w", err)
	}
	return &Index{store: st, passages: passages, vectors: vecs, dimension: dim}, nil
}

// Search returns the k nearest passages to vector. k larger than Len is
// clamped.
func (ix *Index) Search(ctx context.Context, vector []float64, k int) ([]domain.Neighbor, error) {
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("query has dimension %d, index %d: %w", len(vector), ix.dimension, domain.ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, errors.New("vectorstore: k must be positive")
	}
	k = min(k, len(ix.passages))
	nn, err := ix.store.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	for _, n := range nn {
		if n.Position < 0 || n.Position >= len(ix.passages) {
			return nil, fmt.Errorf("vectorstore: position %d out of range", n.Position)
		}
	}
	return nn, nil
}

// Passage returns the passage at position i.
func (ix *Index) Passage(i int) domain.Passage { return ix.passages[i] }

// Vector returns the stored embedding of the passage at position i.
func (ix *Index) Vector(i int) []float64 { return ix.vectors[i] }

// Passages returns all indexed passages in position order.
func (ix *Index) Passages() []domain.Passage { return ix.passages }

func (ix *Index) Len() int       { return len(ix.passages) }
func (ix *Index) Dimension() int { return ix.dimension }
