package memory

import (
	"context"
	"errors"
	"testing"

	"smartual/internal/domain"
)

func TestSearch_OrdersByDistanceThenPosition(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	if err := s.Init(ctx, 2); err != nil {
		t.Fatal(err)
	}
	vecs := [][]float64{{3, 0}, {1, 0}, {0, 1}, {1, 0}}
	if err := s.Upsert(ctx, vecs); err != nil {
		t.Fatal(err)
	}

	got, err := s.Search(ctx, []float64{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Neighbor{{Position: 1, Distance: 0}, {Position: 3, Distance: 0}, {Position: 2, Distance: 2}}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSearch_KLargerThanStore(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	_ = s.Init(ctx, 1)
	_ = s.Upsert(ctx, [][]float64{{0}, {1}})
	got, err := s.Search(ctx, []float64{0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 results, got %d", len(got))
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	_ = s.Init(ctx, 2)
	if err := s.Upsert(ctx, [][]float64{{1}}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := s.Search(ctx, []float64{1, 2, 3}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch on search, got %v", err)
	}
	if err := s.Init(ctx, 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestClear(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	_ = s.Init(ctx, 1)
	_ = s.Upsert(ctx, [][]float64{{1}})
	_ = s.Clear(ctx)
	if s.Len() != 0 {
		t.Errorf("expected empty store after Clear, got %d", s.Len())
	}
}
