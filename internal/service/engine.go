// Package service wires the retrieval pipeline into a question answering
// engine. A built pipeline is an immutable snapshot; Reload swaps in a new
// one while in-flight questions finish on the old.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"smartual/internal/chunker"
	"smartual/internal/classifier"
	"smartual/internal/corpus"
	"smartual/internal/domain"
	"smartual/internal/embedding"
	"smartual/internal/extractor"
	"smartual/internal/feedback"
	"smartual/internal/retriever"
	"smartual/internal/vectorstore"
)

// EncoderFactory returns a fresh encoder for one build. Local encoders must
// not be shared between builds because Prepare refits them.
type EncoderFactory func(ctx context.Context) (embedding.Encoder, error)

// StorageFactory returns the vector storage for one build.
type StorageFactory func(ctx context.Context) (vectorstore.Storage, error)

// CorpusLoader reads the sections and example sets for one build.
type CorpusLoader func() (*corpus.Corpus, error)

// Config holds everything an Engine needs.
type Config struct {
	LoadCorpus CorpusLoader
	NewEncoder EncoderFactory
	NewStorage StorageFactory
	Feedback   *feedback.Log
	Logger     *slog.Logger

	// FeedbackCSV, when set, is read by Stats for per-section vote counts.
	FeedbackCSV string

	ChunkSize int
	TopK      int
	Extractor extractor.Options
	Samples   []string
}

type snapshot struct {
	corpus     *corpus.Corpus
	passages   []domain.Passage
	encoder    embedding.Encoder
	storage    vectorstore.Storage
	index      *vectorstore.Index
	classifier *classifier.Classifier
	retriever  *retriever.Retriever
	extractor  *extractor.Extractor
	builtAt    time.Time
	buildTime  time.Duration
}

// Engine answers questions against the current snapshot. It is safe for
// concurrent use.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	feedback *feedback.Log

	current  atomic.Pointer[snapshot]
	reloadMu sync.Mutex
	queries  atomic.Int64
}

// New builds the first snapshot. Any build failure is a configuration error
// and no Engine is returned.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.LoadCorpus == nil {
		cfg.LoadCorpus = corpus.Default
	}
	if cfg.NewEncoder == nil {
		return nil, domain.NewConfigError("encoder", "no encoder factory")
	}
	if cfg.NewStorage == nil {
		return nil, domain.NewConfigError("vector_store", "no storage factory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fb := cfg.Feedback
	if fb == nil {
		fb = feedback.NewLog(feedback.Nop{}, logger)
	}
	e := &Engine{cfg: cfg, logger: logger, feedback: fb}
	snap, err := e.build(ctx)
	if err != nil {
		return nil, err
	}
	e.current.Store(snap)
	return e, nil
}

// Reload rebuilds everything from the corpus source and swaps it in. On
// failure the previous snapshot keeps serving. A per-build storage that
// implements vectorstore.Dropper is dropped once its snapshot is replaced.
func (e *Engine) Reload(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	snap, err := e.build(ctx)
	if err != nil {
		e.logger.Error("reload failed, keeping previous corpus", "error", err)
		return err
	}
	old := e.current.Swap(snap)
	if old != nil {
		e.drop(ctx, old.storage, snap.storage)
	}
	return nil
}

// drop releases st unless it is also backing keep.
func (e *Engine) drop(ctx context.Context, st, keep vectorstore.Storage) {
	d, ok := st.(vectorstore.Dropper)
	if !ok || st == keep {
		return
	}
	if err := d.Drop(ctx); err != nil {
		e.logger.Warn("drop vector storage failed", "error", err)
	}
}

func (e *Engine) build(ctx context.Context) (*snapshot, error) {
	start := time.Now()
	c, err := e.cfg.LoadCorpus()
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	passages := chunker.NewSentenceChunker(e.cfg.ChunkSize).Chunk(c.Sections)
	if len(passages) == 0 {
		return nil, domain.ErrNoPassages
	}

	enc, err := e.cfg.NewEncoder(ctx)
	if err != nil {
		return nil, fmt.Errorf("encoder unavailable: %w", err)
	}
	prep := make([]string, 0, len(passages))
	for _, p := range passages {
		prep = append(prep, p.Text)
	}
	for _, ex := range c.Examples {
		prep = append(prep, ex.Questions...)
	}
	if err := enc.Prepare(prep); err != nil {
		return nil, fmt.Errorf("prepare encoder: %w", err)
	}

	// Encoder failures must not reach a storage shared with the serving
	// snapshot; vectorstore.Build embeds before it clears.
	cls, err := classifier.New(ctx, enc, c.Examples)
	if err != nil {
		return nil, err
	}
	if cls.Sections() == 0 {
		return nil, domain.ErrNoExamples
	}

	st, err := e.cfg.NewStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector store unavailable: %w", err)
	}
	index, err := vectorstore.Build(ctx, st, passages, enc)
	if err != nil {
		var keep vectorstore.Storage
		if cur := e.current.Load(); cur != nil {
			keep = cur.storage
		}
		e.drop(ctx, st, keep)
		return nil, fmt.Errorf("build index: %w", err)
	}

	snap := &snapshot{
		corpus:     c,
		passages:   passages,
		encoder:    enc,
		storage:    st,
		index:      index,
		classifier: cls,
		retriever:  retriever.New(index, enc, e.cfg.TopK),
		extractor:  extractor.New(enc, e.cfg.Extractor),
		builtAt:    time.Now(),
		buildTime:  time.Since(start),
	}
	e.logger.Info("corpus indexed",
		"sections", len(c.Sections),
		"passages", len(passages),
		"example_sets", cls.Sections(),
		"encoder", enc.ModelInfo(),
		"dimension", index.Dimension(),
		"took", snap.buildTime,
	)
	return snap, nil
}

// Answer classifies the question and retrieves passages in parallel, then
// extracts an answer from the nearest passage.
func (e *Engine) Answer(ctx context.Context, question string) (*domain.Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	snap := e.current.Load()
	if snap == nil {
		return nil, domain.ErrNotReady
	}
	start := time.Now()
	e.queries.Add(1)

	q, err := embedding.EmbedOne(ctx, snap.encoder, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	var (
		section      string
		sectionScore float64
		retrieved    []domain.Retrieved
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		section, sectionScore = snap.classifier.ClassifyVector(q)
		return nil
	})
	g.Go(func() error {
		var err error
		retrieved, err = snap.retriever.RetrieveVector(gctx, q, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(retrieved) == 0 {
		return nil, errors.New("service: index returned no passages")
	}

	answer, confidence, err := snap.extractor.Extract(ctx, question, retrieved[0].Passage)
	if err != nil {
		return nil, err
	}

	resp := &domain.Response{
		Question:          question,
		Section:           section,
		SectionConfidence: sectionScore,
		Answer:            answer,
		AnswerConfidence:  confidence,
		Retrieved:         retrieved,
	}
	e.logger.Info("question answered",
		"section", section,
		"section_confidence", sectionScore,
		"answer_confidence", confidence,
		"top_passage_section", retrieved[0].Passage.Section,
		"took", time.Since(start),
	)
	return resp, nil
}

// Feedback records whether resp helped. It never fails; sink errors are
// logged by the feedback log.
func (e *Engine) Feedback(ctx context.Context, resp *domain.Response, helpful bool) domain.FeedbackRecord {
	return e.feedback.Record(ctx, domain.FeedbackRecord{
		Question:   resp.Question,
		Answer:     resp.Answer,
		Section:    resp.Section,
		Confidence: resp.AnswerConfidence,
		Helpful:    helpful,
	})
}

// Samples returns the configured sample questions.
func (e *Engine) Samples() []string {
	return append([]string(nil), e.cfg.Samples...)
}

// Sections lists section names of the current corpus.
func (e *Engine) Sections() []string {
	snap := e.current.Load()
	if snap == nil {
		return nil
	}
	return snap.corpus.SectionNames()
}

// Close releases the feedback sink.
func (e *Engine) Close() error {
	return e.feedback.Close()
}
