package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"smartual/internal/domain"
	"smartual/internal/embedding"
)

// Storage is a simple in-memory vector store using brute-force squared L2 distance.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, vectors [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return domain.ErrDimensionMismatch
		}
	}
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float64, k int) ([]domain.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, nil
	}
	neighbors := make([]domain.Neighbor, len(s.vectors))
	for i, v := range s.vectors {
		d, err := embedding.SquaredL2(v, vector)
		if err != nil {
			return nil, err
		}
		neighbors[i] = domain.Neighbor{Position: i, Distance: d}
	}
	// Stable sort keeps lower positions first among equal distances.
	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].Distance < neighbors[b].Distance
	})
	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k], nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	return nil
}

// Len reports the number of stored vectors.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}
