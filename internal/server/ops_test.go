package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

type opsStoreStub struct {
	profiles map[string]bool
	locked   map[string]bool
	recorded []store.OpsEvent
}

func (s *opsStoreStub) ProfileExists(ctx context.Context, userID string) (bool, error) {
	return s.profiles[userID], nil
}

func (s *opsStoreStub) SetProfileLocked(ctx context.Context, userID string, locked bool) error {
	if s.locked == nil {
		s.locked = map[string]bool{}
	}
	s.locked[userID] = locked
	return nil
}

func (s *opsStoreStub) RecordOpsEvent(ctx context.Context, ev store.OpsEvent) (store.OpsEvent, error) {
	ev.ID = "ev-1"
	ev.CreatedAt = time.Unix(1700000000, 0).UTC()
	s.recorded = append(s.recorded, ev)
	return ev, nil
}

func (s *opsStoreStub) ListOpsEvents(ctx context.Context, userID string, limit int) ([]store.OpsEvent, error) {
	return s.recorded, nil
}

type historyStub struct {
	subject string
	count   int64
}

func (h *historyStub) Replay(ctx context.Context, subject string, count int64) ([]streams.Envelope, error) {
	h.subject, h.count = subject, count
	return []streams.Envelope{{EventType: streams.EventUserLocked, Subject: subject}}, nil
}

func newOpsHandler(t *testing.T) (*opsStoreStub, *publisherStub, *OpsHandler) {
	t.Helper()
	reg, err := streams.NewBaseRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	st := &opsStoreStub{profiles: map[string]bool{"user-1": true}}
	pub := &publisherStub{}
	return st, pub, NewOpsHandler(st, reg, pub, &historyStub{}, nil)
}

func TestOpsSendUserLocked(t *testing.T) {
	st, pub, h := newOpsHandler(t)
	e := newTestEcho()
	ctx, rec := newContext(e, http.MethodPost, "/", `{"event":"user_locked","payload":{"reason":"spam"}}`, "user_id", "user-1")
	ctx.Set("user_id", "admin-1")

	if err := h.send(ctx); err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if !st.locked["user-1"] {
		t.Fatalf("user_locked must lock the profile")
	}
	if len(st.recorded) != 1 || st.recorded[0].CreatedBy == nil || *st.recorded[0].CreatedBy != "admin-1" {
		t.Fatalf("unexpected audit row: %#v", st.recorded)
	}
	if len(pub.events) != 1 || pub.events[0].subject != "user-1" || pub.events[0].eventType != streams.EventUserLocked {
		t.Fatalf("unexpected publish: %#v", pub.events)
	}
	var resp OpsEventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "ev-1" || resp.StreamID == "" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestOpsSendDefaultsEmptyPayload(t *testing.T) {
	st, _, h := newOpsHandler(t)
	e := newTestEcho()
	ctx, _ := newContext(e, http.MethodPost, "/", `{"event":"session_terminated"}`, "user_id", "user-1")
	if err := h.send(ctx); err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	if string(st.recorded[0].Payload) != `{}` {
		t.Fatalf("expected empty object payload, got %s", st.recorded[0].Payload)
	}
	if st.locked["user-1"] {
		t.Fatalf("session_terminated must not lock the profile")
	}
}

func TestOpsSendRejections(t *testing.T) {
	cases := []struct {
		name string
		user string
		body string
		code int
	}{
		{name: "schema violation", user: "user-1", body: `{"event":"user_locked","payload":{}}`, code: http.StatusBadRequest},
		{name: "extra field", user: "user-1", body: `{"event":"session_terminated","payload":{"colour":"red"}}`, code: http.StatusBadRequest},
		{name: "not broadcastable", user: "user-1", body: `{"event":"payout_status_changed","payload":{}}`, code: http.StatusBadRequest},
		{name: "unknown user", user: "ghost", body: `{"event":"session_terminated"}`, code: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, pub, h := newOpsHandler(t)
			e := newTestEcho()
			ctx, _ := newContext(e, http.MethodPost, "/", tc.body, "user_id", tc.user)
			requireHTTPError(t, h.send(ctx), tc.code)
			if len(st.recorded) != 0 || len(pub.events) != 0 {
				t.Fatalf("rejected event must not be recorded or published")
			}
		})
	}
}

func TestOpsSendPublishFailure(t *testing.T) {
	st, pub, h := newOpsHandler(t)
	pub.err = errors.New("redis down")
	e := newTestEcho()
	ctx, _ := newContext(e, http.MethodPost, "/", `{"event":"session_terminated"}`, "user_id", "user-1")
	requireHTTPError(t, h.send(ctx), http.StatusServiceUnavailable)
	if len(st.recorded) != 1 {
		t.Fatalf("event should be recorded before the publish attempt")
	}
}

func TestOpsReplay(t *testing.T) {
	_, _, h := newOpsHandler(t)
	hist := h.history.(*historyStub)
	e := newTestEcho()
	ctx, rec := newContext(e, http.MethodGet, "/?limit=5", "", "user_id", "user-1")
	if err := h.replay(ctx); err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if hist.subject != "user-1" || hist.count != 5 {
		t.Fatalf("unexpected replay args: %+v", hist)
	}
	var envs []streams.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envs) != 1 {
		t.Fatalf("expected one envelope, got %d", len(envs))
	}
}
