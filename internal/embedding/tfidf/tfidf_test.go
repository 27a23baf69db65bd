package tfidf

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"smartual/internal/embedding"
)

func TestEmbed_RequiresPrepare(t *testing.T) {
	e := NewEmbedder()
	if _, err := e.Embed(context.Background(), []string{"x"}); !errors.Is(err, embedding.ErrNotPrepared) {
		t.Fatalf("expected ErrNotPrepared, got %v", err)
	}
	if err := e.Prepare(nil); err == nil {
		t.Error("expected error for empty corpus")
	}
}

func TestEmbed_UnitVectorsAndSimilarity(t *testing.T) {
	e := NewEmbedder()
	corpus := []string{
		"Students must attend classes regularly",
		"Tuition fees are paid every semester",
		"Scholarships cover tuition for honor students",
	}
	if err := e.Prepare(corpus); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	vecs, err := e.Embed(context.Background(), []string{"attend classes", "tuition fees", "zzz unknown"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs[:2] {
		if len(v) != e.Dimension() {
			t.Errorf("vector %d has dimension %d, want %d", i, len(v), e.Dimension())
		}
		if math.Abs(embedding.Norm(v)-1) > 1e-9 {
			t.Errorf("vector %d not normalized: %v", i, embedding.Norm(v))
		}
	}
	if embedding.Norm(vecs[2]) != 0 {
		t.Errorf("out-of-vocabulary text should embed to zero vector")
	}

	docs, _ := e.Embed(context.Background(), corpus)
	if embedding.Cosine(vecs[0], docs[0]) <= embedding.Cosine(vecs[0], docs[1]) {
		t.Error("attendance query should be closer to attendance text than to fees text")
	}
}

func TestModelInfo_ChangesWithVocabulary(t *testing.T) {
	a := NewEmbedder()
	b := NewEmbedder()
	_ = a.Prepare([]string{"alpha beta"})
	_ = b.Prepare([]string{"alpha gamma"})
	if a.ModelInfo() == b.ModelInfo() {
		t.Errorf("different vocabularies share model info %q", a.ModelInfo())
	}
	c := NewEmbedder()
	_ = c.Prepare([]string{"beta alpha"})
	if a.ModelInfo() != c.ModelInfo() {
		t.Errorf("same vocabulary produced %q and %q", a.ModelInfo(), c.ModelInfo())
	}
}

func TestEmbed_ConcurrentReaders(t *testing.T) {
	e := NewEmbedder()
	if err := e.Prepare([]string{"grading system final grade", "attendance absences tardiness"}); err != nil {
		t.Fatal(err)
	}
	want, _ := e.Embed(context.Background(), []string{"final grade"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Embed(context.Background(), []string{"final grade"})
			if err != nil {
				t.Error(err)
				return
			}
			for j := range got[0] {
				if got[0][j] != want[0][j] {
					t.Error("concurrent embedding differs")
					return
				}
			}
		}()
	}
	wg.Wait()
}
