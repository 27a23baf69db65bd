package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"smartual/internal/embedding"
)

// maxBatch is the request limit of BatchEmbedContents.
const maxBatch = 100

// Config configures the Gemini embedder.
type Config struct {
	APIKeyEnv string
	Model     string
	BatchSize int
}

// Embedder uses the Gemini API to turn text into embedding vectors.
type Embedder struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	modelName string
	batchSize int

	mu        sync.RWMutex
	dimension int
}

// NewEmbedder creates a Gemini embedder. The key is read from cfg.APIKeyEnv.
func NewEmbedder(ctx context.Context, cfg Config) (*Embedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Embedder{
		client:    client,
		model:     client.EmbeddingModel(cfg.Model),
		modelName: cfg.Model,
		batchSize: clampBatch(cfg.BatchSize),
	}, nil
}

func (e *Embedder) Name() string      { return "gemini" }
func (e *Embedder) ModelInfo() string { return "gemini-" + e.modelName }

// Prepare is a no-op for remote models.
func (e *Embedder) Prepare(_ []string) error { return nil }

func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// Embed sends texts in BatchEmbedContents requests of at most batchSize items.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, span := range batches(len(texts), e.batchSize) {
		b := e.model.NewBatch()
		for _, t := range texts[span[0]:span[1]] {
			b.AddContent(genai.Text(t))
		}
		resp, err := e.model.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(resp.Embeddings) != span[1]-span[0] {
			return nil, fmt.Errorf("gemini batch embed: %d inputs produced %d vectors", span[1]-span[0], len(resp.Embeddings))
		}
		for _, emb := range resp.Embeddings {
			if emb == nil {
				return nil, errors.New("gemini batch embed: empty embedding")
			}
			v := embedding.FromFloat32(emb.Values)
			embedding.Normalize(v)
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		e.mu.Lock()
		if e.dimension == 0 {
			e.dimension = len(out[0])
		}
		e.mu.Unlock()
	}
	if err := embedding.CheckBatch(texts, out, e.Dimension()); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	return e.client.Close()
}

func clampBatch(n int) int {
	if n <= 0 || n > maxBatch {
		return maxBatch
	}
	return n
}

// batches splits n items into [start, end) spans of at most size.
func batches(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
