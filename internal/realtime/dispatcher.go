package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/metrics"
	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
)

// Source is the consumer-group side of the ops stream.
type Source interface {
	Read(ctx context.Context, stream string, opts ...streams.ConsumerOption) ([]streams.Message, error)
	Ack(ctx context.Context, stream string, ids ...string) error
	AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]streams.Message, string, error)
}

// Sender delivers a message to one user's channel.
type Sender interface {
	Send(ctx context.Context, userID string, msg Message) (int64, error)
}

// DispatcherOptions tunes the dispatch loop. Zero values fall back to defaults.
type DispatcherOptions struct {
	Block      time.Duration
	BatchSize  int64
	ClaimIdle  time.Duration
	ClaimEvery time.Duration
}

// Dispatcher moves envelopes from the ops stream onto per-user channels.
// Entries are acked only after a successful publish so a crashed or failing
// dispatcher leaves them pending for AutoClaim.
type Dispatcher struct {
	src    Source
	bus    Sender
	stream string
	opts   DispatcherOptions
	log    *logger.Logger
	now    func() time.Time
}

func NewDispatcher(src Source, bus Sender, stream string, opts DispatcherOptions, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = 30 * time.Second
	}
	if opts.ClaimEvery <= 0 {
		opts.ClaimEvery = 15 * time.Second
	}
	return &Dispatcher{
		src:    src,
		bus:    bus,
		stream: stream,
		opts:   opts,
		log:    log.Named("dispatcher"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started", "stream", d.stream)
	lastClaim := time.Time{}
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			d.log.Info("dispatcher stopped")
			return nil
		}
		if time.Since(lastClaim) >= d.opts.ClaimEvery {
			if n, err := d.Reclaim(ctx); err != nil {
				d.log.Warn("reclaim failed", "error", err)
			} else if n > 0 {
				d.log.Info("reclaimed stale entries", "count", n)
			}
			lastClaim = time.Now()
		}

		msgs, err := d.src.Read(ctx, d.stream, streams.WithBlock(d.opts.Block), streams.WithCount(d.opts.BatchSize))
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			d.log.Warn("stream read failed", "error", err, "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		d.Dispatch(ctx, msgs)
	}
}

// Reclaim takes over entries left pending by dead consumers and dispatches them.
func (d *Dispatcher) Reclaim(ctx context.Context) (int, error) {
	start := "0-0"
	total := 0
	for {
		msgs, next, err := d.src.AutoClaim(ctx, d.stream, d.opts.ClaimIdle, start, d.opts.BatchSize)
		if err != nil {
			return total, err
		}
		total += d.Dispatch(ctx, msgs)
		if next == "" || next == "0-0" || len(msgs) == 0 {
			return total, nil
		}
		start = next
	}
}

// Dispatch publishes each message and acks the delivered ones. It returns the
// number of acked entries.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []streams.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	acked := make([]string, 0, len(msgs))
	for _, m := range msgs {
		env := m.Envelope
		msg := Message{
			ID:      env.EventID,
			Event:   env.EventType,
			Payload: env.Data,
			SentAt:  d.now(),
		}
		receivers, err := d.bus.Send(ctx, env.Subject, msg)
		metrics.RealtimeEvents.WithLabelValues(env.EventType, metrics.Outcome(err)).Inc()
		if err != nil {
			d.log.Warn("deliver failed", "entry", m.ID, "event", env.EventType, "user_id", env.Subject, "error", err)
			continue
		}
		d.log.Debug("delivered", "entry", m.ID, "event", env.EventType, "user_id", env.Subject, "receivers", receivers)
		acked = append(acked, m.ID)
	}
	if len(acked) == 0 {
		return 0
	}
	if err := d.src.Ack(ctx, d.stream, acked...); err != nil {
		d.log.Warn("ack failed", "count", len(acked), "error", err)
		return 0
	}
	return len(acked)
}
