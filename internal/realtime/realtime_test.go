package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
)

type stubPubSub struct {
	channels []string
	bodies   [][]byte
	err      error
}

func (s *stubPubSub) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	s.channels = append(s.channels, channel)
	if b, ok := message.([]byte); ok {
		s.bodies = append(s.bodies, b)
	}
	return redis.NewIntResult(1, s.err)
}

func (s *stubPubSub) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return nil
}

func TestBusSendUsesUserChannel(t *testing.T) {
	ps := &stubPubSub{}
	bus := NewBus(ps, "ops:user:", nil)
	n, err := bus.Send(context.Background(), "u-42", Message{ID: "e1", Event: "user_locked", Payload: json.RawMessage(`{"reason":"spam"}`)})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 receiver, got %d", n)
	}
	if len(ps.channels) != 1 || ps.channels[0] != "ops:user:u-42" {
		t.Fatalf("unexpected channels %v", ps.channels)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(ps.bodies[0], &got); err != nil {
		t.Fatalf("body: %v", err)
	}
	if got["event"] != "user_locked" || got["sent_at"] == nil {
		t.Fatalf("unexpected body %v", got)
	}
	if payload, ok := got["payload"].(map[string]interface{}); !ok || payload["reason"] != "spam" {
		t.Fatalf("unexpected payload %v", got["payload"])
	}
}

func TestBusSendRequiresUser(t *testing.T) {
	bus := NewBus(&stubPubSub{}, "", nil)
	if _, err := bus.Send(context.Background(), " ", Message{}); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if bus.Channel("x") != "ops:user:x" {
		t.Fatalf("default prefix not applied: %s", bus.Channel("x"))
	}
}

type stubSource struct {
	acked   []string
	claims  [][]streams.Message
	ackErr  error
	claimed int
}

func (s *stubSource) Read(ctx context.Context, stream string, opts ...streams.ConsumerOption) ([]streams.Message, error) {
	return nil, nil
}

func (s *stubSource) Ack(ctx context.Context, stream string, ids ...string) error {
	if s.ackErr != nil {
		return s.ackErr
	}
	s.acked = append(s.acked, ids...)
	return nil
}

func (s *stubSource) AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]streams.Message, string, error) {
	if s.claimed >= len(s.claims) {
		return nil, "0-0", nil
	}
	msgs := s.claims[s.claimed]
	s.claimed++
	next := "0-0"
	if s.claimed < len(s.claims) {
		next = "5-0"
	}
	return msgs, next, nil
}

type stubSender struct {
	fail map[string]bool
	sent []string
}

func (s *stubSender) Send(ctx context.Context, userID string, msg Message) (int64, error) {
	if s.fail[userID] {
		return 0, errors.New("redis down")
	}
	s.sent = append(s.sent, userID+":"+msg.Event)
	return 0, nil
}

func message(id, user, event string) streams.Message {
	return streams.Message{ID: id, Envelope: streams.Envelope{EventID: "ev-" + id, EventType: event, Subject: user, PayloadVersion: "v1", Data: json.RawMessage(`{}`)}}
}

func TestDispatchAcksOnlyDelivered(t *testing.T) {
	src := &stubSource{}
	snd := &stubSender{fail: map[string]bool{"bad": true}}
	d := NewDispatcher(src, snd, "ops.events", DispatcherOptions{}, nil)

	n := d.Dispatch(context.Background(), []streams.Message{
		message("1-0", "alice", streams.EventSessionTerminated),
		message("2-0", "bad", streams.EventUserLocked),
		message("3-0", "bob", streams.EventPayoutStatusChanged),
	})
	if n != 2 {
		t.Fatalf("expected 2 acked, got %d", n)
	}
	if len(src.acked) != 2 || src.acked[0] != "1-0" || src.acked[1] != "3-0" {
		t.Fatalf("unexpected acks %v", src.acked)
	}
	if len(snd.sent) != 2 || snd.sent[0] != "alice:session_terminated" {
		t.Fatalf("unexpected sends %v", snd.sent)
	}
}

func TestDispatchAckFailure(t *testing.T) {
	src := &stubSource{ackErr: errors.New("ack")}
	d := NewDispatcher(src, &stubSender{}, "ops.events", DispatcherOptions{}, nil)
	if n := d.Dispatch(context.Background(), []streams.Message{message("1-0", "a", streams.EventUserLocked)}); n != 0 {
		t.Fatalf("expected 0 on ack failure, got %d", n)
	}
}

func TestReclaimWalksAllPages(t *testing.T) {
	src := &stubSource{claims: [][]streams.Message{
		{message("1-0", "a", streams.EventUserLocked)},
		{message("4-0", "b", streams.EventUserLocked), message("5-0", "c", streams.EventUserLocked)},
	}}
	snd := &stubSender{}
	d := NewDispatcher(src, snd, "ops.events", DispatcherOptions{}, nil)
	n, err := d.Reclaim(context.Background())
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 3 || len(snd.sent) != 3 {
		t.Fatalf("expected 3 reclaimed, got %d (sent %v)", n, snd.sent)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDispatcher(&stubSource{}, &stubSender{}, "ops.events", DispatcherOptions{}, nil)
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}
