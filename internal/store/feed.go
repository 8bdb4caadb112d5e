package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
	"github.com/mohammad-safakhou/vibeops/internal/feed"
)

// Viewer loads a viewer's vibe, intent, followees and mutual counts.
func (s *Store) Viewer(ctx context.Context, userID string) (feed.Viewer, error) {
	var vibe, intent sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT vibe, intent FROM profiles WHERE id=$1`, userID).Scan(&vibe, &intent)
	if err == sql.ErrNoRows {
		return feed.Viewer{}, feed.ErrViewerNotFound
	}
	if err != nil {
		return feed.Viewer{}, err
	}
	v := feed.Viewer{
		UserID:    userID,
		Vibe:      algorithm.Vibe(vibe.String),
		Intent:    algorithm.Intent(intent.String),
		Following: map[string]struct{}{},
		Mutuals:   map[string]int{},
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT followee_id FROM follows WHERE follower_id=$1`, userID)
	if err != nil {
		return feed.Viewer{}, fmt.Errorf("load following: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return feed.Viewer{}, err
		}
		v.Following[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return feed.Viewer{}, err
	}

	// mutuals: people the viewer follows who also follow the creator
	rows, err = s.DB.QueryContext(ctx, `
SELECT f2.followee_id, COUNT(*)
FROM follows f1
JOIN follows f2 ON f2.follower_id = f1.followee_id
WHERE f1.follower_id = $1 AND f2.followee_id <> $1
GROUP BY f2.followee_id
`, userID)
	if err != nil {
		return feed.Viewer{}, fmt.Errorf("load mutuals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return feed.Viewer{}, err
		}
		v.Mutuals[id] = n
	}
	return v, rows.Err()
}

// Candidates returns the newest visible items not authored by the viewer.
func (s *Store) Candidates(ctx context.Context, viewerID string, limit int) ([]feed.Item, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.id, c.creator_id, p.intent, c.content_type, c.vibe, c.quality_score, c.created_at
FROM content_items c
JOIN profiles p ON p.id = c.creator_id
WHERE NOT c.is_hidden AND NOT p.is_locked AND c.creator_id <> $1
ORDER BY c.created_at DESC, c.id ASC
LIMIT $2
`, viewerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []feed.Item
	for rows.Next() {
		var it feed.Item
		var intent, vibe sql.NullString
		if err := rows.Scan(&it.ID, &it.CreatorID, &intent, &it.ContentType, &vibe, &it.Quality, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.CreatorIntent = algorithm.Intent(intent.String)
		it.Vibe = algorithm.Vibe(vibe.String)
		out = append(out, it)
	}
	return out, rows.Err()
}

// ContentDoc is a content item as the moderation index sees it.
type ContentDoc struct {
	ID          string    `json:"id"`
	CreatorID   string    `json:"creator_id"`
	ContentType string    `json:"content_type"`
	Vibe        string    `json:"vibe,omitempty"`
	Caption     string    `json:"caption"`
	Hidden      bool      `json:"hidden"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListContentSince pages through content created or edited after the
// (updated_at, id) cursor, least recently changed first.
func (s *Store) ListContentSince(ctx context.Context, since time.Time, afterID string, limit int) ([]ContentDoc, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, creator_id, content_type, vibe, caption, is_hidden, created_at, updated_at
FROM content_items
WHERE (updated_at, id) > ($1, $2)
ORDER BY updated_at ASC, id ASC
LIMIT $3
`, since.UTC(), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContentDoc
	for rows.Next() {
		var d ContentDoc
		var vibe sql.NullString
		if err := rows.Scan(&d.ID, &d.CreatorID, &d.ContentType, &vibe, &d.Caption, &d.Hidden, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Vibe = vibe.String
		out = append(out, d)
	}
	return out, rows.Err()
}
