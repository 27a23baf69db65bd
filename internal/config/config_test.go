package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"smartual/internal/domain"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedder.Type != "tfidf" || cfg.VectorStore.Type != "memory" || cfg.Feedback.Type != "csv" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Chunker.ChunkSize != 300 || cfg.Retriever.TopK != 3 {
		t.Errorf("unexpected sizes: chunk %d, top_k %d", cfg.Chunker.ChunkSize, cfg.Retriever.TopK)
	}
	if cfg.Extractor.FallbackConfidence != 0.5 || cfg.Extractor.MinSentenceChars != 10 {
		t.Errorf("unexpected extractor defaults %+v", cfg.Extractor)
	}
	if len(cfg.Samples) != len(DefaultSamples) {
		t.Errorf("expected default samples")
	}
}

func TestLoad_AppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "embedder:\n  type: openai\n  fallback: tfidf\nfeedback:\n  type: redis\n  redis:\n    addr: localhost:6379\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedder.OpenAI == nil || cfg.Embedder.OpenAI.APIKeyEnv != "OPENAI_API_KEY" || cfg.Embedder.OpenAI.BatchSize != 32 {
		t.Errorf("openai defaults not applied: %+v", cfg.Embedder.OpenAI)
	}
	if cfg.Feedback.Redis.Stream != "smartual:feedback" {
		t.Errorf("redis stream default not applied: %q", cfg.Feedback.Redis.Stream)
	}
	if cfg.Embedder.Gemini != nil {
		t.Error("gemini config should stay nil when unused")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*AppConfig)
		field string
	}{
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "bert" }, "embedder.type"},
		{"fallback equals primary", func(c *AppConfig) { c.Embedder.Fallback = "tfidf" }, "embedder.fallback"},
		{"negative chunk size", func(c *AppConfig) { c.Chunker.ChunkSize = -1 }, "chunker.chunk_size"},
		{"qdrant without addr", func(c *AppConfig) { c.VectorStore.Type = "qdrant" }, "vector_store.qdrant.addr"},
		{"unknown store", func(c *AppConfig) { c.VectorStore.Type = "faiss" }, "vector_store.type"},
		{"bad top_k", func(c *AppConfig) { c.Retriever.TopK = -2 }, "retriever.top_k"},
		{"bad fallback confidence", func(c *AppConfig) { c.Extractor.FallbackConfidence = 2 }, "extractor.fallback_confidence"},
		{"nats without url", func(c *AppConfig) { c.Feedback.Type = "nats" }, "feedback.nats.url"},
		{"unknown sink", func(c *AppConfig) { c.Feedback.Type = "kafka" }, "feedback.type"},
		{"unknown log format", func(c *AppConfig) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mod(cfg)
			err := cfg.Validate()
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var ce *domain.ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retriever.TopK = 5
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Retriever.TopK != 5 {
		t.Errorf("expected top_k 5, got %d", got.Retriever.TopK)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvEmbedder, "openai")
	t.Setenv(EnvAddr, ":9090")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvFeedbackCSV, "/tmp/votes.csv")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedder.Type != "openai" || cfg.Embedder.OpenAI == nil || cfg.Embedder.OpenAI.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("embedder override should pick up openai defaults: %+v", cfg.Embedder)
	}
	if cfg.Server.Addr != ":9090" || cfg.Log.Level != "debug" || cfg.Feedback.CSV.Path != "/tmp/votes.csv" {
		t.Errorf("overrides not applied: addr %q level %q csv %q", cfg.Server.Addr, cfg.Log.Level, cfg.Feedback.CSV.Path)
	}
}

func TestLoad_RejectsBadEnvOverride(t *testing.T) {
	t.Setenv(EnvEmbedder, "word2vec")
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var cerr *domain.ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "embedder.type" {
		t.Fatalf("expected embedder.type config error, got %v", err)
	}
}
