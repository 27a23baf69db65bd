package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a remote encoder so each Embed batch waits for a token.
type RateLimited struct {
	Encoder
	limiter *rate.Limiter
}

// NewRateLimited limits enc to rps batches per second with the given burst.
// A non-positive rps returns enc unchanged.
func NewRateLimited(enc Encoder, rps float64, burst int) Encoder {
	if rps <= 0 {
		return enc
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{Encoder: enc, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Embed waits for the limiter, then delegates.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Encoder.Embed(ctx, texts)
}
