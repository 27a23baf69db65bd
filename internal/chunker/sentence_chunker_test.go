package chunker

import (
	"reflect"
	"strings"
	"testing"

	"smartual/internal/domain"
)

func TestChunk_SingleShortSection(t *testing.T) {
	c := NewSentenceChunker(300)
	passages := c.Chunk([]domain.Section{{Name: "A", Text: "Cats are mammals. Dogs are mammals too."}})

	if len(passages) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(passages))
	}
	if passages[0].Text != "Cats are mammals. Dogs are mammals too." {
		t.Errorf("unexpected text: %q", passages[0].Text)
	}
	if passages[0].Section != "A" {
		t.Errorf("unexpected section: %q", passages[0].Section)
	}
}

func TestChunk_EmptySection(t *testing.T) {
	c := NewSentenceChunker(300)
	passages := c.Chunk([]domain.Section{{Name: "empty", Text: "   \n  "}})
	if len(passages) != 0 {
		t.Fatalf("expected no passages, got %d", len(passages))
	}
}

func TestChunk_LongSentenceStandsAlone(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 12))
	text := "short one. " + long + ". tail here"
	c := NewSentenceChunker(5)
	passages := c.Chunk([]domain.Section{{Name: "S", Text: text}})

	if len(passages) != 3 {
		t.Fatalf("expected 3 passages, got %d: %+v", len(passages), passages)
	}
	if got := passages[1].Sentences; len(got) != 1 || got[0] != long {
		t.Errorf("long sentence should form its own passage, got %q", got)
	}
}

func TestChunk_CoverageAndBound(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("lorem ", i%7+1))
		b.WriteString("end. ")
	}
	section := domain.Section{Name: "Big", Text: b.String()}

	tests := []struct {
		name string
		size int
	}{
		{"tiny", 3},
		{"small", 10},
		{"medium", 25},
		{"default", 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passages := NewSentenceChunker(tt.size).Chunk([]domain.Section{section})

			var got []string
			for _, p := range passages {
				if len(p.Sentences) == 0 {
					t.Fatalf("empty passage at %d", p.Index)
				}
				got = append(got, p.Sentences...)
				words := 0
				for _, s := range p.Sentences {
					words += len(strings.Fields(s))
				}
				if words > tt.size && len(p.Sentences) > 1 {
					t.Errorf("passage %d has %d words over limit %d", p.Index, words, tt.size)
				}
				if p.SectionText != section.Text {
					t.Errorf("passage %d lost its section back-reference", p.Index)
				}
			}
			want := SplitSentences(section.Text)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("sentences not reproduced in order:\n got %q\nwant %q", got, want)
			}
		})
	}
}

func TestChunk_Deterministic(t *testing.T) {
	sections := []domain.Section{
		{Name: "A", Text: "One two three. Four five six. Seven eight."},
		{Name: "B", Text: "Alpha beta. Gamma delta epsilon. Zeta."},
	}
	c := NewSentenceChunker(4)
	first := c.Chunk(sections)
	second := c.Chunk(sections)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("chunking is not deterministic")
	}
	if first[0].Section != "A" || first[len(first)-1].Section != "B" {
		t.Errorf("section order not preserved: %+v", first)
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("  First one.  Second. . Third part.")
	want := []string{"First one", "Second", "Third part."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJoinSentences(t *testing.T) {
	if got := JoinSentences([]string{"a", "b"}); got != "a. b." {
		t.Errorf("got %q", got)
	}
	if got := JoinSentences([]string{"a", "b."}); got != "a. b." {
		t.Errorf("got %q", got)
	}
}
