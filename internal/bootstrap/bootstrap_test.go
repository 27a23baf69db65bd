package bootstrap

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"smartual/internal/config"
	"smartual/internal/feedback"
)

func defaults(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Feedback.CSV.Path = filepath.Join(t.TempDir(), "feedback.csv")
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_DefaultStack(t *testing.T) {
	cfg := defaults(t)
	app, err := Build(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	resp, err := app.Engine.Answer(context.Background(), "How many absences are allowed per semester?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer == "" || resp.Section == "" {
		t.Errorf("incomplete response %+v", resp)
	}
	if len(resp.Retrieved) != cfg.Retriever.TopK {
		t.Errorf("expected %d passages, got %d", cfg.Retriever.TopK, len(resp.Retrieved))
	}

	app.Engine.Feedback(context.Background(), resp, true)
	counts, err := feedback.SectionCounts(cfg.Feedback.CSV.Path)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 1 || counts[0].Section != resp.Section {
		t.Errorf("feedback not written to csv: %+v", counts)
	}
	if got := app.Engine.Stats(); got.Sections != 14 || got.Encoder == "" {
		t.Errorf("unexpected stats %+v", got)
	}
}

func TestBuild_FallsBackToTFIDF(t *testing.T) {
	t.Setenv("SMARTUAL_TEST_NO_KEY", "")
	cfg := defaults(t)
	cfg.Embedder.Type = "openai"
	cfg.Embedder.Fallback = "tfidf"
	cfg.Embedder.OpenAI = &config.OpenAIEmbedderConfig{APIKeyEnv: "SMARTUAL_TEST_NO_KEY", Model: "m"}
	cfg.Feedback.Type = "none"

	var logs bytes.Buffer
	app, err := Build(context.Background(), cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("build with fallback: %v", err)
	}
	defer app.Close()
	if enc := app.Engine.Stats().Encoder; !strings.HasPrefix(enc, "tfidf-") {
		t.Errorf("expected tfidf encoder, got %q", enc)
	}
	if !strings.Contains(logs.String(), "trying fallback") {
		t.Errorf("fallback was not logged: %s", logs.String())
	}
}

func TestBuild_EncoderUnavailable(t *testing.T) {
	t.Setenv("SMARTUAL_TEST_NO_KEY", "")
	cfg := defaults(t)
	cfg.Embedder.Type = "openai"
	cfg.Embedder.OpenAI = &config.OpenAIEmbedderConfig{APIKeyEnv: "SMARTUAL_TEST_NO_KEY"}
	if _, err := Build(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected startup to fail without an encoder")
	}
}

func TestBuild_WithCache(t *testing.T) {
	cfg := defaults(t)
	cfg.Embedder.Cache = config.CacheConfig{Enabled: true, Path: t.TempDir()}
	app, err := Build(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	if _, err := app.Engine.Answer(context.Background(), "What scholarships are available?"); err != nil {
		t.Fatal(err)
	}
	if s := app.Engine.Stats(); s.CacheMisses == 0 {
		t.Errorf("expected cache activity, got %+v", s)
	}
}

func TestBuild_UnknownBackends(t *testing.T) {
	cfg := defaults(t)
	cfg.VectorStore.Type = "faiss"
	if _, err := Build(context.Background(), cfg, quietLogger()); err == nil {
		t.Error("expected unknown vector store error")
	}
	cfg = defaults(t)
	cfg.Feedback.Type = "kafka"
	if _, err := Build(context.Background(), cfg, quietLogger()); err == nil {
		t.Error("expected unknown feedback sink error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("expected json output, got %s", out)
	}

	buf.Reset()
	NewLogger(config.LogConfig{Level: "nonsense", Format: "text"}, &buf).Info("plain")
	if !strings.Contains(buf.String(), "msg=plain") {
		t.Errorf("expected text output at info, got %s", buf.String())
	}
}
