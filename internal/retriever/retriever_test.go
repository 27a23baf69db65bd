package retriever

import (
	"context"
	"fmt"
	"math"
	"testing"

	"smartual/internal/domain"
	"smartual/internal/embedding/embeddingtest"
	"smartual/internal/vectorstore"
	"smartual/internal/vectorstore/memory"
)

func buildIndex(t *testing.T, enc *embeddingtest.BagOfWords, texts ...string) *vectorstore.Index {
	t.Helper()
	passages := make([]domain.Passage, len(texts))
	for i, text := range texts {
		passages[i] = domain.Passage{Section: "S", Text: text, Index: i}
	}
	ix, err := vectorstore.Build(context.Background(), memory.NewStorage(), passages, enc)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return ix
}

func TestRetrieve_KExceedsPassages(t *testing.T) {
	enc := embeddingtest.NewBagOfWords("grade", "attendance", "fees")
	ix := buildIndex(t, enc, "attendance rules", "final grade computation")
	r := New(ix, enc, 3)

	got, err := r.Retrieve(context.Background(), "grade", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Passage.Text != "final grade computation" {
		t.Errorf("nearest passage = %q", got[0].Passage.Text)
	}
	if got[0].Distance > got[1].Distance {
		t.Errorf("results not ascending by distance: %v, %v", got[0].Distance, got[1].Distance)
	}
	if math.Abs(got[0].Score-1) > 1e-9 || got[1].Score != 0 {
		t.Errorf("unexpected cosine scores %v, %v", got[0].Score, got[1].Score)
	}
}

func TestRetrieve_DefaultK(t *testing.T) {
	enc := embeddingtest.NewBagOfWords("a", "b", "c", "d")
	ix := buildIndex(t, enc, "a", "b", "c", "d", "a b")
	r := New(ix, enc, 0)
	got, err := r.Retrieve(context.Background(), "a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultTopK {
		t.Fatalf("expected %d results, got %d", DefaultTopK, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Distance > got[i].Distance {
			t.Errorf("result %d out of order", i)
		}
	}
}

func TestRetrieve_MinKAndTotal(t *testing.T) {
	enc := embeddingtest.NewBagOfWords("x", "y", "z")
	ix := buildIndex(t, enc, "x", "y", "z")
	r := New(ix, enc, 3)
	for k := 1; k <= 6; k++ {
		got, err := r.Retrieve(context.Background(), "x y", k)
		if err != nil {
			t.Fatal(err)
		}
		if want := min(k, 3); len(got) != want {
			t.Errorf("k=%d: expected %d results, got %d", k, want, len(got))
		}
	}
}

// fixedEncoder returns preset, unnormalized vectors.
type fixedEncoder map[string][]float64

func (f fixedEncoder) Name() string             { return "fixed" }
func (f fixedEncoder) ModelInfo() string        { return "fixed-v1" }
func (f fixedEncoder) Prepare(_ []string) error { return nil }
func (f fixedEncoder) Dimension() int           { return 2 }
func (f fixedEncoder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := f[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func TestRetrieve_RanksByDistanceReportsCosine(t *testing.T) {
	enc := fixedEncoder{
		"question":     {1, 0},
		"same angle":   {3, 0},     // cosine 1, squared distance 4
		"close by":     {0.8, 0.6}, // cosine 0.8, squared distance 0.4
		"far opposite": {-2, 0},    // cosine -1, squared distance 9
	}
	passages := []domain.Passage{{Text: "same angle"}, {Text: "close by"}, {Text: "far opposite"}}
	ix, err := vectorstore.Build(context.Background(), memory.NewStorage(), passages, enc)
	if err != nil {
		t.Fatal(err)
	}
	got, err := New(ix, enc, 3).Retrieve(context.Background(), "question", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		text     string
		distance float64
		score    float64
	}{
		{"close by", 0.4, 0.8},
		{"same angle", 4, 1},
		{"far opposite", 9, -1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Passage.Text != w.text {
			t.Errorf("rank %d = %q, want %q", i, got[i].Passage.Text, w.text)
		}
		if math.Abs(got[i].Distance-w.distance) > 1e-9 || math.Abs(got[i].Score-w.score) > 1e-9 {
			t.Errorf("rank %d distance %v score %v, want %v and %v", i, got[i].Distance, got[i].Score, w.distance, w.score)
		}
	}
	if got[0].Score >= got[1].Score {
		t.Error("nearest passage should not carry the highest cosine in this fixture")
	}
}
