package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// OpsEvent is an audit row for a broadcast sent to a user's ops channel.
type OpsEvent struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	EventType string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedBy *string         `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// OpsAdmin is an ops console account.
type OpsAdmin struct {
	ID           string
	Email        string
	PasswordHash string
	Scopes       []string
}

// SystemStats are the row counts surfaced on the live status page.
type SystemStats struct {
	PendingPayouts   int64 `json:"pending_payouts"`
	InReviewPayouts  int64 `json:"in_review_payouts"`
	ApprovedPayouts  int64 `json:"approved_payouts"`
	LockedUsers      int64 `json:"locked_users"`
	ActiveConfigs    int64 `json:"active_configs"`
	ScheduledConfigs int64 `json:"scheduled_configs"`
}

// RecordOpsEvent writes an ops broadcast to the audit table.
func (s *Store) RecordOpsEvent(ctx context.Context, ev OpsEvent) (OpsEvent, error) {
	if ev.UserID == "" || ev.EventType == "" {
		return OpsEvent{}, fmt.Errorf("user_id and event are required")
	}
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	var createdBy interface{}
	if ev.CreatedBy != nil {
		createdBy = *ev.CreatedBy
	}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO ops_events (user_id, event_type, payload, created_by)
VALUES ($1,$2,$3,$4)
RETURNING id, created_at
`, ev.UserID, ev.EventType, payload, createdBy).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return OpsEvent{}, err
	}
	ev.Payload = append(json.RawMessage{}, payload...)
	return ev, nil
}

// ListOpsEvents returns a user's most recent ops events.
func (s *Store) ListOpsEvents(ctx context.Context, userID string, limit int) ([]OpsEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, event_type, payload, created_by, created_at
FROM ops_events
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []OpsEvent{}
	for rows.Next() {
		var ev OpsEvent
		var raw []byte
		var createdBy sql.NullString
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.EventType, &raw, &createdBy, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Payload = append(json.RawMessage{}, raw...)
		ev.CreatedBy = stringPtr(createdBy)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ProfileExists reports whether a user profile exists.
func (s *Store) ProfileExists(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id=$1)`, userID).Scan(&ok)
	return ok, err
}

// SetProfileLocked flips the lock flag on a profile.
func (s *Store) SetProfileLocked(ctx context.Context, userID string, locked bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE profiles SET is_locked=$2 WHERE id=$1`, userID, locked)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: profile %s", ErrNotFound, userID)
	}
	return nil
}

// CreateOpsAdmin inserts an ops console account.
func (s *Store) CreateOpsAdmin(ctx context.Context, email, hash string, scopes []string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO ops_admins (email, password_hash, scopes) VALUES ($1,$2,$3) RETURNING id`,
		strings.ToLower(strings.TrimSpace(email)), hash, pq.Array(scopes)).Scan(&id)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("%w: ops admin %s", ErrConflict, email)
	}
	return id, err
}

// GetOpsAdminByEmail looks up an ops console account.
func (s *Store) GetOpsAdminByEmail(ctx context.Context, email string) (OpsAdmin, bool, error) {
	var a OpsAdmin
	err := s.DB.QueryRowContext(ctx, `SELECT id, email, password_hash, scopes FROM ops_admins WHERE email=$1`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&a.ID, &a.Email, &a.PasswordHash, pq.Array(&a.Scopes))
	if err == sql.ErrNoRows {
		return OpsAdmin{}, false, nil
	}
	if err != nil {
		return OpsAdmin{}, false, err
	}
	return a, true, nil
}

// SystemStats counts the queues the ops console watches.
func (s *Store) SystemStats(ctx context.Context) (SystemStats, error) {
	var st SystemStats
	err := s.DB.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM payout_requests WHERE status='pending'),
  (SELECT COUNT(*) FROM payout_requests WHERE status='in_review'),
  (SELECT COUNT(*) FROM payout_requests WHERE status='approved'),
  (SELECT COUNT(*) FROM profiles WHERE is_locked),
  (SELECT COUNT(*) FROM algorithm_configs WHERE is_active),
  (SELECT COUNT(*) FROM algorithm_configs WHERE NOT is_active AND activated_at IS NULL AND effective_from IS NOT NULL)
`).Scan(&st.PendingPayouts, &st.InReviewPayouts, &st.ApprovedPayouts, &st.LockedUsers, &st.ActiveConfigs, &st.ScheduledConfigs)
	return st, err
}
