package service

import (
	"time"

	"smartual/internal/feedback"
)

// Stats describes the current snapshot and engine activity.
type Stats struct {
	Sections         int                     `json:"sections"`
	Passages         int                     `json:"passages"`
	ExampleSets      int                     `json:"example_sets"`
	Encoder          string                  `json:"encoder"`
	Dimension        int                     `json:"dimension"`
	BuiltAt          time.Time               `json:"built_at"`
	BuildTime        string                  `json:"build_time"`
	Queries          int64                   `json:"queries"`
	FeedbackFailures int64                   `json:"feedback_failures"`
	CacheHits        int64                   `json:"cache_hits,omitempty"`
	CacheMisses      int64                   `json:"cache_misses,omitempty"`
	FeedbackSections []feedback.SectionCount `json:"feedback_sections,omitempty"`
}

// cacheStats is implemented by caching encoders.
type cacheStats interface {
	Stats() (hits, misses int64)
}

// Stats reports the current snapshot. With a CSV feedback log configured,
// FeedbackSections counts votes per section.
func (e *Engine) Stats() Stats {
	s := Stats{
		Queries:          e.queries.Load(),
		FeedbackFailures: e.feedback.Failures(),
	}
	snap := e.current.Load()
	if snap == nil {
		return s
	}
	s.Sections = len(snap.corpus.Sections)
	s.Passages = len(snap.passages)
	s.ExampleSets = snap.classifier.Sections()
	s.Encoder = snap.encoder.ModelInfo()
	s.Dimension = snap.index.Dimension()
	s.BuiltAt = snap.builtAt
	s.BuildTime = snap.buildTime.Round(time.Millisecond).String()
	if c, ok := snap.encoder.(cacheStats); ok {
		s.CacheHits, s.CacheMisses = c.Stats()
	}
	if e.cfg.FeedbackCSV != "" {
		counts, err := feedback.SectionCounts(e.cfg.FeedbackCSV)
		if err != nil {
			e.logger.Warn("feedback analytics unavailable", "path", e.cfg.FeedbackCSV, "error", err)
		}
		s.FeedbackSections = counts
	}
	return s
}
