// Package bootstrap assembles a service.Engine from an AppConfig. Both
// front ends share it so the component switches live in one place.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"smartual/internal/config"
	"smartual/internal/corpus"
	"smartual/internal/embedding"
	"smartual/internal/embedding/cache"
	"smartual/internal/embedding/gemini"
	"smartual/internal/embedding/openai"
	"smartual/internal/embedding/tfidf"
	"smartual/internal/extractor"
	"smartual/internal/feedback"
	"smartual/internal/service"
	"smartual/internal/vectorstore"
	"smartual/internal/vectorstore/memory"
	"smartual/internal/vectorstore/qdrant"
)

// App is a ready engine plus the connections it owns.
type App struct {
	Engine  *service.Engine
	closers []io.Closer
}

// Close shuts the engine and every backend connection down.
func (a *App) Close() error {
	errs := []error{a.Engine.Close()}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from cfg, writing to w.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Build connects the configured backends and indexes the corpus. Any
// failure is fatal and already-opened connections are closed.
func Build(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{}
	fail := func(err error) (*App, error) {
		for i := len(app.closers) - 1; i >= 0; i-- {
			_ = app.closers[i].Close()
		}
		return nil, err
	}

	encoders := &encoderSet{cfg: cfg.Embedder, logger: logger, remote: make(map[string]embedding.Encoder)}
	app.closers = append(app.closers, encoders)

	newStorage, err := storageFactory(cfg.VectorStore, app)
	if err != nil {
		return fail(err)
	}

	sink, err := newSink(ctx, cfg.Feedback)
	if err != nil {
		return fail(err)
	}
	var feedbackCSV string
	if csv, ok := sink.(*feedback.CSVSink); ok {
		feedbackCSV = csv.Path()
	}

	corpusCfg := cfg.Corpus
	engine, err := service.New(ctx, service.Config{
		LoadCorpus: func() (*corpus.Corpus, error) {
			return corpus.Load(corpusCfg.ManualPath, corpusCfg.ExamplesPath)
		},
		NewEncoder:  encoders.New,
		NewStorage:  newStorage,
		Feedback:    feedback.NewLog(sink, logger),
		Logger:      logger,
		FeedbackCSV: feedbackCSV,
		ChunkSize:   cfg.Chunker.ChunkSize,
		TopK:        cfg.Retriever.TopK,
		Extractor: extractor.Options{
			MaxSentences:       cfg.Extractor.MaxSentences,
			MinSentenceChars:   cfg.Extractor.MinSentenceChars,
			FallbackChars:      cfg.Extractor.FallbackChars,
			FallbackConfidence: cfg.Extractor.FallbackConfidence,
		},
		Samples: cfg.Samples,
	})
	if err != nil {
		_ = sink.Close()
		return fail(err)
	}
	app.Engine = engine
	return app, nil
}

// encoderSet hands out one encoder per engine build. The local tfidf
// encoder is refit by Prepare, so each build gets a fresh one; remote
// clients are stateless and opened once.
type encoderSet struct {
	cfg    config.EmbedderConfig
	logger *slog.Logger

	mu      sync.Mutex
	remote  map[string]embedding.Encoder
	closers []io.Closer
}

// New opens the configured encoder, trying the fallback type when the
// primary cannot start, and wraps it with the cache when enabled.
func (s *encoderSet) New(ctx context.Context) (embedding.Encoder, error) {
	enc, err := s.open(ctx, s.cfg.Type)
	if err != nil && s.cfg.Fallback != "" {
		s.logger.Warn("encoder unavailable, trying fallback",
			"type", s.cfg.Type, "fallback", s.cfg.Fallback, "error", err)
		enc, err = s.open(ctx, s.cfg.Fallback)
	}
	if err != nil {
		return nil, err
	}
	if !s.cfg.Cache.Enabled {
		return enc, nil
	}
	return cache.New(enc, s.cfg.Cache.Path, s.logger)
}

func (s *encoderSet) open(ctx context.Context, typ string) (embedding.Encoder, error) {
	if typ == "tfidf" {
		return tfidf.NewEmbedder(), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if enc, ok := s.remote[typ]; ok {
		return enc, nil
	}
	var enc embedding.Encoder
	switch typ {
	case "openai":
		oc := s.cfg.OpenAI
		if oc == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize: oc.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		enc = embedding.NewRateLimited(client, oc.RequestsPerSec, 1)
	case "gemini":
		gc := s.cfg.Gemini
		if gc == nil {
			return nil, fmt.Errorf("gemini embedder config missing")
		}
		g, err := gemini.NewEmbedder(ctx, gemini.Config{
			APIKeyEnv: gc.APIKeyEnv,
			Model:     gc.Model,
			BatchSize: gc.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		s.closers = append(s.closers, g)
		enc = embedding.NewRateLimited(g, gc.RequestsPerSec, 1)
	default:
		return nil, fmt.Errorf("unknown embedder: %s", typ)
	}
	s.remote[typ] = enc
	return enc, nil
}

func (s *encoderSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func storageFactory(cfg config.VectorStoreConfig, app *App) (service.StorageFactory, error) {
	switch cfg.Type {
	case "memory":
		return func(context.Context) (vectorstore.Storage, error) {
			return memory.NewStorage(), nil
		}, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		st, err := qdrant.NewStorage(qdrant.Config{
			Addr:       cfg.Qdrant.Addr,
			APIKey:     os.Getenv(cfg.Qdrant.APIKeyEnv),
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, st)
		// Each build fills its own collection; the engine drops the previous
		// one after swapping.
		var gen atomic.Int64
		return func(context.Context) (vectorstore.Storage, error) {
			return st.WithCollection(fmt.Sprintf("%s_%d", st.Collection(), gen.Add(1))), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func newSink(ctx context.Context, cfg config.FeedbackConfig) (feedback.Sink, error) {
	switch cfg.Type {
	case "csv":
		return feedback.NewCSVSink(cfg.CSV.Path), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis feedback config missing")
		}
		return feedback.NewRedisSink(ctx, feedback.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
		})
	case "nats":
		if cfg.NATS == nil {
			return nil, fmt.Errorf("nats feedback config missing")
		}
		return feedback.NewNATSSink(cfg.NATS.URL, cfg.NATS.Subject)
	case "none":
		return feedback.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown feedback sink: %s", cfg.Type)
	}
}
