// Package feedback records helpfulness votes. Writes are append-only and a
// failing sink never fails the caller.
package feedback

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"smartual/internal/domain"
)

// Sink persists feedback records. Append must be safe for concurrent use
// and write each record atomically.
type Sink interface {
	Append(ctx context.Context, rec domain.FeedbackRecord) error
	Close() error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Append(context.Context, domain.FeedbackRecord) error { return nil }
func (Nop) Close() error                                        { return nil }

// Log isolates callers from sink failures: errors are logged and counted.
type Log struct {
	sink     Sink
	logger   *slog.Logger
	now      func() time.Time
	failures atomic.Int64
}

func NewLog(sink Sink, logger *slog.Logger) *Log {
	if sink == nil {
		sink = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{sink: sink, logger: logger, now: time.Now}
}

// Record fills in ID and Timestamp when missing, rounds the confidence to
// three decimals and appends the record. It returns the stored record.
func (l *Log) Record(ctx context.Context, rec domain.FeedbackRecord) domain.FeedbackRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	rec.Confidence = RoundConfidence(rec.Confidence)
	if err := l.sink.Append(ctx, rec); err != nil {
		l.failures.Add(1)
		l.logger.Error("feedback append failed",
			"id", rec.ID,
			"section", rec.Section,
			"helpful", rec.Helpful,
			"error", err,
		)
		return rec
	}
	l.logger.Debug("feedback recorded", "id", rec.ID, "section", rec.Section, "helpful", rec.Helpful)
	return rec
}

// Failures returns how many appends have failed.
func (l *Log) Failures() int64 { return l.failures.Load() }

func (l *Log) Close() error { return l.sink.Close() }

// RoundConfidence rounds c to three decimal places.
func RoundConfidence(c float64) float64 {
	return math.Round(c*1000) / 1000
}
