package domain

import "time"

// Section is a named division of the policy manual with its full raw text.
type Section struct {
	Name string
	Text string
}

// Passage is a bounded-size excerpt of a section used for indexing.
// SectionText points back at the owning section's full text; it is never
// modified through the passage.
type Passage struct {
	Section     string
	Text        string
	SectionText string
	Sentences   []string // the section sentences this passage was built from, in order
	Index       int      // position within the owning section
}

// ExampleSet holds the canonical example questions of one section.
type ExampleSet struct {
	Section   string
	Questions []string
}

// Neighbor is a single nearest-neighbour hit: the position of a passage in
// the index and its squared L2 distance to the query vector.
type Neighbor struct {
	Position int
	Distance float64
}

// Retrieved is a passage returned by the retriever. Score is the cosine
// similarity reported to users; Distance is the L2 ranking key.
type Retrieved struct {
	Passage  Passage
	Score    float64
	Distance float64
}

// Response bundles everything produced for a single question.
type Response struct {
	Question          string      `json:"question"`
	Section           string      `json:"section"`
	SectionConfidence float64     `json:"section_confidence"`
	Answer            string      `json:"answer"`
	AnswerConfidence  float64     `json:"answer_confidence"`
	Retrieved         []Retrieved `json:"-"`
}

// FeedbackRecord is one append-only helpfulness vote.
type FeedbackRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Section    string    `json:"section"`
	Confidence float64   `json:"confidence"`
	Helpful    bool      `json:"helpful"`
}

// Chunker splits sections into passages suitable for retrieval indexing.
type Chunker interface {
	Chunk(sections []Section) []Passage
}
