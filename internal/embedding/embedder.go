package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"smartual/internal/domain"
)

// Encoder converts text into fixed-length numeric vectors.
// Implementations may require a preparation phase over the corpus; after
// Prepare returns, Embed must be safe for concurrent use.
// Returned vectors are L2-normalized, except that text with no usable
// content may map to the zero vector.
type Encoder interface {
	Name() string
	// ModelInfo identifies the weights in use; vectors from encoders with
	// different ModelInfo values must never be compared.
	ModelInfo() string
	Prepare(corpus []string) error
	Dimension() int
	// Embed encodes a batch of texts in a single call, preserving order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedOne embeds a single text through the batch interface.
func EmbedOne(ctx context.Context, enc Encoder, text string) ([]float64, error) {
	vecs, err := enc.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// CheckBatch verifies a batch result matches its input and the expected dimension.
// A dim of 0 skips the dimension check.
func CheckBatch(texts []string, vecs [][]float64, dim int) error {
	if len(vecs) != len(texts) {
		return fmt.Errorf("embedding: %d texts produced %d vectors", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("embedding: empty vector at %d", i)
		}
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("embedding: vector %d has dimension %d, want %d: %w", i, len(v), dim, domain.ErrDimensionMismatch)
		}
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SquaredL2 returns the squared Euclidean distance between a and b.
func SquaredL2(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.ErrDimensionMismatch
	}
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum, nil
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float64) {
	norm := Norm(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// ToFloat32 converts a vector for storage backends that use float32.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// FromFloat32 converts a float32 vector returned by remote services.
func FromFloat32(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// ErrNotPrepared is returned by encoders that need Prepare before Embed.
var ErrNotPrepared = errors.New("embedding: encoder not prepared")
