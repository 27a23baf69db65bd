package feedback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"smartual/internal/domain"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

type publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes each record as JSON on a subject, carrying the trace
// context of the request in message headers.
type NATSSink struct {
	pub     publisher
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to the NATS server at url.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("smartual-feedback"))
	if err != nil {
		return nil, fmt.Errorf("feedback: connect to nats %s: %w", url, err)
	}
	return &NATSSink{pub: nc, conn: nc, subject: subject}, nil
}

func (s *NATSSink) Append(ctx context.Context, rec domain.FeedbackRecord) error {
	rec.Confidence = RoundConfidence(rec.Confidence)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: s.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("feedback: publish %s: %w", s.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
