package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/vibeops/internal/metrics"
)

// Adder is the subset of the redis client the publisher needs.
type Adder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher appends schema-validated envelopes to one Redis stream.
type Publisher struct {
	client   Adder
	registry *SchemaRegistry
	stream   string
	maxLen   int64
}

// NewPublisher creates a Publisher for stream. maxLen > 0 trims the stream approximately.
func NewPublisher(client Adder, registry *SchemaRegistry, stream string, maxLen int64) *Publisher {
	return &Publisher{client: client, registry: registry, stream: stream, maxLen: maxLen}
}

// Stream returns the stream name.
func (p *Publisher) Stream() string { return p.stream }

// Publish validates the envelope and appends it to the stream.
func (p *Publisher) Publish(ctx context.Context, envelope Envelope) (string, error) {
	if p.stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	if envelope.EventID == "" {
		envelope.EventID = uuid.NewString()
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	if err := envelope.ValidateBasic(); err != nil {
		return "", err
	}
	if p.registry != nil {
		if err := p.registry.Validate(envelope.EventType, envelope.PayloadVersion, envelope.Data); err != nil {
			metrics.StreamMessages.WithLabelValues(envelope.EventType, "rejected").Inc()
			return "", err
		}
	}

	raw, err := envelope.Marshal()
	if err != nil {
		return "", err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{"envelope": raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	metrics.StreamMessages.WithLabelValues(envelope.EventType, metrics.Outcome(err)).Inc()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishEvent wraps payload in a v1 envelope addressed to subject and publishes it.
func (p *Publisher) PublishEvent(ctx context.Context, eventType, subject, actor string, payload interface{}) (Envelope, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, "", fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		Subject:        subject,
		Actor:          actor,
		OccurredAt:     time.Now().UTC(),
		PayloadVersion: "v1",
		Data:           data,
	}
	id, err := p.Publish(ctx, env)
	return env, id, err
}
