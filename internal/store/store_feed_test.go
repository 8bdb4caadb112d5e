package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
	"github.com/mohammad-safakhou/vibeops/internal/feed"
)

func TestViewerLoadsSocialGraph(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT vibe, intent FROM profiles WHERE id=$1`)).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"vibe", "intent"}).AddRow("chill", nil))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT followee_id FROM follows WHERE follower_id=$1`)).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"followee_id"}).AddRow("c1").AddRow("c2"))
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN follows f2 ON f2.follower_id = f1.followee_id`)).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"followee_id", "count"}).AddRow("c3", 2))

	v, err := st.Viewer(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Viewer: %v", err)
	}
	if v.Vibe != algorithm.VibeChill || v.Intent != "" {
		t.Fatalf("unexpected signals: %+v", v)
	}
	if !v.Follows("c1") || !v.Follows("c2") || v.Follows("c3") {
		t.Fatalf("unexpected following: %+v", v.Following)
	}
	if v.Mutuals["c3"] != 2 {
		t.Fatalf("unexpected mutuals: %+v", v.Mutuals)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestViewerMissingProfile(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT vibe, intent FROM profiles WHERE id=$1`)).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"vibe", "intent"}))

	if _, err := st.Viewer(context.Background(), "ghost"); !errors.Is(err, feed.ErrViewerNotFound) {
		t.Fatalf("expected ErrViewerNotFound, got %v", err)
	}
}

func TestCandidates(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE NOT c.is_hidden AND NOT p.is_locked AND c.creator_id <> $1`)).
		WithArgs("u1", 500).
		WillReturnRows(sqlmock.NewRows([]string{"id", "creator_id", "intent", "content_type", "vibe", "quality_score", "created_at"}).
			AddRow("i1", "c1", "flirt", "photo", "social", 0.8, created).
			AddRow("i2", "c2", nil, "live", nil, 0.3, created))

	items, err := st.Candidates(context.Background(), "u1", 500)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].CreatorIntent != algorithm.IntentFlirt || items[0].Vibe != algorithm.VibeSocial || items[0].Quality != 0.8 {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].Vibe != "" || items[1].CreatorIntent != "" {
		t.Fatalf("null signals should map to empty: %+v", items[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListContentSinceUsesUpdatedCursor(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	since := created.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE (updated_at, id) > ($1, $2)`)).
		WithArgs(since, "i0", 500).
		WillReturnRows(sqlmock.NewRows([]string{"id", "creator_id", "content_type", "vibe", "caption", "is_hidden", "created_at", "updated_at"}).
			AddRow("i1", "c1", "photo", nil, "edited caption", true, created, since.Add(time.Minute)))

	docs, err := st.ListContentSince(context.Background(), since, "i0", 0)
	if err != nil {
		t.Fatalf("ListContentSince: %v", err)
	}
	if len(docs) != 1 || docs[0].Caption != "edited caption" || !docs[0].Hidden || docs[0].Vibe != "" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if !docs[0].UpdatedAt.Equal(since.Add(time.Minute)) || !docs[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected timestamps: %+v", docs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetProfileLockedMissing(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles SET is_locked=$2 WHERE id=$1`)).WithArgs("ghost", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.SetProfileLocked(context.Background(), "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordOpsEventDefaultsPayload(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()
	admin := "admin-1"
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO ops_events (user_id, event_type, payload, created_by)`)).
		WithArgs("u1", "session_terminated", []byte(`{}`), "admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("ev-1", now))

	ev, err := st.RecordOpsEvent(context.Background(), OpsEvent{UserID: "u1", EventType: "session_terminated", CreatedBy: &admin})
	if err != nil {
		t.Fatalf("RecordOpsEvent: %v", err)
	}
	if ev.ID != "ev-1" || string(ev.Payload) != `{}` {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
