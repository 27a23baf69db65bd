package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"smartual/internal/domain"
)

// CorpusConfig points at the manual and example files. Empty paths select
// the embedded student manual.
type CorpusConfig struct {
	ManualPath   string `yaml:"manual_path"`
	ExamplesPath string `yaml:"examples_path"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
	BatchSize      int     `yaml:"batch_size"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model"`
	BatchSize      int     `yaml:"batch_size"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// CacheConfig enables the on-disk embedding cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// Fallback names another type to try when the primary cannot start.
type EmbedderConfig struct {
	Type     string                `yaml:"type"`
	Fallback string                `yaml:"fallback,omitempty"`
	OpenAI   *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini   *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
	Cache    CacheConfig           `yaml:"cache"`
}

// ChunkerConfig configures how sections are split into passages.
type ChunkerConfig struct {
	Type      string `yaml:"type"`
	ChunkSize int    `yaml:"chunk_size"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr        string `yaml:"addr"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrieverConfig sets how many passages are returned per question.
type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// ExtractorConfig tunes answer extraction.
type ExtractorConfig struct {
	MaxSentences       int     `yaml:"max_sentences"`
	MinSentenceChars   int     `yaml:"min_sentence_chars"`
	FallbackChars      int     `yaml:"fallback_chars"`
	FallbackConfidence float64 `yaml:"fallback_confidence"`
}

// FeedbackConfig selects where helpfulness votes are written.
type FeedbackConfig struct {
	Type  string               `yaml:"type"`
	CSV   CSVFeedbackConfig    `yaml:"csv"`
	Redis *RedisFeedbackConfig `yaml:"redis,omitempty"`
	NATS  *NATSFeedbackConfig  `yaml:"nats,omitempty"`
}

type CSVFeedbackConfig struct {
	Path string `yaml:"path"`
}

type RedisFeedbackConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

type NATSFeedbackConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr             string  `yaml:"addr"`
	QueryTimeoutSecs int     `yaml:"query_timeout_secs"`
	RequestsPerSec   float64 `yaml:"requests_per_sec"`
	Burst            int     `yaml:"burst"`
	CORSOrigin       string  `yaml:"cors_origin"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Feedback    FeedbackConfig    `yaml:"feedback"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Samples     []string          `yaml:"samples"`
}

// DefaultSamples are offered to users who do not know what to ask.
var DefaultSamples = []string{
	"What are the admission requirements for T.I.P.?",
	"How is the final grade computed in courses?",
	"What scholarships are available for students?",
	"What is the policy on academic probation?",
	"How many absences are allowed per semester?",
	"What services does the T.I.P. library offer?",
	"How can I request for official documents?",
	"What are the guidelines for thesis writing?",
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied before defaults.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/smartual/config.yaml.
// If neither exists, it writes defaults to ~/.config/smartual/config.yaml and loads them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err != nil {
		if err := Save(userPath, defaultConfig()); err != nil {
			return nil, "", err
		}
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types and non-positive sizes.
func (c *AppConfig) Validate() error {
	if !oneOf(c.Embedder.Type, "tfidf", "openai", "gemini") {
		return domain.NewConfigError("embedder.type", fmt.Sprintf("unknown embedder %q", c.Embedder.Type))
	}
	if c.Embedder.Fallback != "" && !oneOf(c.Embedder.Fallback, "tfidf", "openai", "gemini") {
		return domain.NewConfigError("embedder.fallback", fmt.Sprintf("unknown embedder %q", c.Embedder.Fallback))
	}
	if c.Embedder.Fallback == c.Embedder.Type {
		return domain.NewConfigError("embedder.fallback", "must differ from embedder.type")
	}
	if c.Chunker.Type != "sentence" {
		return domain.NewConfigError("chunker.type", fmt.Sprintf("unknown chunker %q", c.Chunker.Type))
	}
	if c.Chunker.ChunkSize <= 0 {
		return domain.NewConfigError("chunker.chunk_size", "must be positive")
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.Addr == "" {
			return domain.NewConfigError("vector_store.qdrant.addr", "required for qdrant")
		}
	default:
		return domain.NewConfigError("vector_store.type", fmt.Sprintf("unknown vector store %q", c.VectorStore.Type))
	}
	if c.Retriever.TopK <= 0 {
		return domain.NewConfigError("retriever.top_k", "must be positive")
	}
	if c.Extractor.MaxSentences <= 0 || c.Extractor.MinSentenceChars <= 0 || c.Extractor.FallbackChars <= 0 {
		return domain.NewConfigError("extractor", "sizes must be positive")
	}
	if c.Extractor.FallbackConfidence < 0 || c.Extractor.FallbackConfidence > 1 {
		return domain.NewConfigError("extractor.fallback_confidence", "must be within [0, 1]")
	}
	switch c.Feedback.Type {
	case "csv", "none":
	case "redis":
		if c.Feedback.Redis == nil || c.Feedback.Redis.Addr == "" {
			return domain.NewConfigError("feedback.redis.addr", "required for redis")
		}
	case "nats":
		if c.Feedback.NATS == nil || c.Feedback.NATS.URL == "" {
			return domain.NewConfigError("feedback.nats.url", "required for nats")
		}
	default:
		return domain.NewConfigError("feedback.type", fmt.Sprintf("unknown feedback sink %q", c.Feedback.Type))
	}
	if !oneOf(c.Log.Format, "text", "json") {
		return domain.NewConfigError("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "smartual", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Type: "sentence", ChunkSize: 300},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retriever:   RetrieverConfig{TopK: 3},
		Feedback:    FeedbackConfig{Type: "csv"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 300
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 3
	}
	if cfg.Extractor.MaxSentences == 0 {
		cfg.Extractor.MaxSentences = 3
	}
	if cfg.Extractor.MinSentenceChars == 0 {
		cfg.Extractor.MinSentenceChars = 10
	}
	if cfg.Extractor.FallbackChars == 0 {
		cfg.Extractor.FallbackChars = 200
	}
	if cfg.Extractor.FallbackConfidence == 0 {
		cfg.Extractor.FallbackConfidence = 0.5
	}
	if needsEmbedder(cfg, "openai") {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if needsEmbedder(cfg, "gemini") {
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
		if cfg.Embedder.Gemini.BatchSize == 0 {
			cfg.Embedder.Gemini.BatchSize = 100
		}
	}
	if cfg.Embedder.Cache.Enabled && cfg.Embedder.Cache.Path == "" {
		cfg.Embedder.Cache.Path = "smartual-cache"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "smartual_passages"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Feedback.Type == "" {
		cfg.Feedback.Type = "csv"
	}
	if cfg.Feedback.CSV.Path == "" {
		cfg.Feedback.CSV.Path = "feedback_log.csv"
	}
	if cfg.Feedback.Redis != nil && cfg.Feedback.Redis.Stream == "" {
		cfg.Feedback.Redis.Stream = "smartual:feedback"
	}
	if cfg.Feedback.NATS != nil && cfg.Feedback.NATS.Subject == "" {
		cfg.Feedback.NATS.Subject = "smartual.feedback"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.QueryTimeoutSecs == 0 {
		cfg.Server.QueryTimeoutSecs = 10
	}
	if cfg.Server.RequestsPerSec == 0 {
		cfg.Server.RequestsPerSec = 20
	}
	if cfg.Server.Burst == 0 {
		cfg.Server.Burst = 40
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = "*"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if len(cfg.Samples) == 0 {
		cfg.Samples = append([]string(nil), DefaultSamples...)
	}
}

// Environment variables that override the file.
const (
	EnvEmbedder    = "SMARTUAL_EMBEDDER"
	EnvAddr        = "SMARTUAL_ADDR"
	EnvLogLevel    = "SMARTUAL_LOG_LEVEL"
	EnvFeedbackCSV = "SMARTUAL_FEEDBACK_CSV"
)

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv(EnvEmbedder); v != "" {
		cfg.Embedder.Type = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvFeedbackCSV); v != "" {
		cfg.Feedback.CSV.Path = v
	}
}

func needsEmbedder(cfg *AppConfig, typ string) bool {
	return cfg.Embedder.Type == typ || cfg.Embedder.Fallback == typ
}
