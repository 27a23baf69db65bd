// Package cache persists embedding vectors on disk so repeated runs over the
// same corpus do not pay for encoding twice.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/philippgille/chromem-go"

	"smartual/internal/embedding"
)

const collectionName = "embeddings"

var errNoEmbeddingFunc = errors.New("cache: vectors must be supplied by the wrapped encoder")

// Encoder wraps another encoder with a chromem-go backed vector cache.
// Entries are keyed by the wrapped encoder's ModelInfo and the text, so
// vectors from different models never mix.
type Encoder struct {
	embedding.Encoder
	col    *chromem.Collection
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New opens (or creates) the cache at dir and wraps enc with it.
func New(enc embedding.Encoder, dir string, logger *slog.Logger) (*Encoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", dir, err)
	}
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }
	col, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache collection: %w", err)
	}
	return &Encoder{Encoder: enc, col: col, logger: logger}, nil
}

// Key returns the cache key for text under the given model.
func Key(modelInfo, text string) string {
	h := sha1.New()
	h.Write([]byte(modelInfo))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed serves cached vectors and encodes only the misses, in one batch.
func (c *Encoder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	model := c.Encoder.ModelInfo()
	dim := c.Encoder.Dimension()
	out := make([][]float64, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = Key(model, text)
		doc, err := c.col.GetByID(ctx, keys[i])
		if err == nil && len(doc.Embedding) > 0 && (dim == 0 || len(doc.Embedding) == dim) {
			out[i] = embedding.FromFloat32(doc.Embedding)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	c.hits.Add(int64(len(texts) - len(missIdx)))
	c.misses.Add(int64(len(missIdx)))
	if len(missIdx) == 0 {
		return out, nil
	}

	vecs, err := c.Encoder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckBatch(missTexts, vecs, 0); err != nil {
		return nil, err
	}

	var ids []string
	var stored [][]float32
	var contents []string
	for j, i := range missIdx {
		out[i] = vecs[j]
		// chromem normalizes on insert, which is undefined for zero vectors.
		if embedding.Norm(vecs[j]) == 0 {
			continue
		}
		ids = append(ids, keys[i])
		stored = append(stored, embedding.ToFloat32(vecs[j]))
		contents = append(contents, texts[i])
	}
	if len(ids) > 0 {
		if err := c.col.Add(ctx, ids, stored, nil, contents); err != nil {
			c.logger.Warn("embedding cache write failed", "model", model, "count", len(ids), "error", err)
		}
	}
	return out, nil
}

// Stats reports cache hits and misses since creation.
func (c *Encoder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached vectors across all models.
func (c *Encoder) Len() int {
	return c.col.Count()
}
