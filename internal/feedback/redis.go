package feedback

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"smartual/internal/domain"
)

// streamAdder is the subset of *redis.Client used by RedisSink.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink appends each record as one entry of a Redis stream.
type RedisSink struct {
	client streamAdder
	closer func() error
	stream string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("feedback: connect to redis %s: %w", cfg.Addr, err)
	}
	return &RedisSink{client: client, closer: client.Close, stream: cfg.Stream}, nil
}

func (s *RedisSink) Append(ctx context.Context, rec domain.FeedbackRecord) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":         rec.ID,
			"timestamp":  rec.Timestamp.Format(time.RFC3339Nano),
			"question":   rec.Question,
			"answer":     rec.Answer,
			"section":    rec.Section,
			"confidence": strconv.FormatFloat(RoundConfidence(rec.Confidence), 'f', -1, 64),
			"helpful":    strconv.FormatBool(rec.Helpful),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("feedback: xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
