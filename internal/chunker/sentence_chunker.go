package chunker

import (
	"strings"

	"smartual/internal/domain"
)

// DefaultChunkSize is the maximum number of words per passage.
const DefaultChunkSize = 300

// sentenceDelimiter is the period-space heuristic used for both chunking and
// answer extraction. It is not grammar-aware.
const sentenceDelimiter = ". "

// SentenceChunker accumulates whole sentences into passages of at most
// chunkSize words. A sentence is never split, so a single sentence longer
// than the limit becomes its own passage.
type SentenceChunker struct {
	chunkSize int
}

func NewSentenceChunker(chunkSize int) *SentenceChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SentenceChunker{chunkSize: chunkSize}
}

// ChunkSize returns the configured word limit.
func (c *SentenceChunker) ChunkSize() int { return c.chunkSize }

// Chunk splits every section in order. Output order is section order times
// passage creation order.
func (c *SentenceChunker) Chunk(sections []domain.Section) []domain.Passage {
	var passages []domain.Passage
	for _, s := range sections {
		passages = append(passages, c.chunkSection(s)...)
	}
	return passages
}

func (c *SentenceChunker) chunkSection(section domain.Section) []domain.Passage {
	sentences := SplitSentences(section.Text)
	if len(sentences) == 0 {
		return nil
	}
	var (
		passages []domain.Passage
		current  []string
		words    int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		passages = append(passages, domain.Passage{
			Section:     section.Name,
			Text:        JoinSentences(current),
			SectionText: section.Text,
			Sentences:   current,
			Index:       len(passages),
		})
		current = nil
		words = 0
	}
	for _, sent := range sentences {
		n := len(strings.Fields(sent))
		if words+n > c.chunkSize && len(current) > 0 {
			flush()
		}
		current = append(current, sent)
		words += n
	}
	flush()
	return passages
}

// SplitSentences splits text on ". ", trims each piece and drops empties.
func SplitSentences(text string) []string {
	raw := strings.Split(text, sentenceDelimiter)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// JoinSentences rejoins sentences with ". " and a single trailing period.
func JoinSentences(sentences []string) string {
	text := strings.Join(sentences, sentenceDelimiter)
	if !strings.HasSuffix(text, ".") {
		text += "."
	}
	return text
}
