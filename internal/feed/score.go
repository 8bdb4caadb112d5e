package feed

import (
	"math"
	"sort"
	"time"

	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
)

// neutral is used for a vibe/intent sub-score when either side is unknown.
const neutral = 0.5

// quality and freshness share of the base sub-score
const (
	qualityShare   = 0.6
	freshnessShare = 0.4
)

// Item is a feed candidate.
type Item struct {
	ID            string           `json:"id"`
	CreatorID     string           `json:"creator_id"`
	CreatorIntent algorithm.Intent `json:"creator_intent,omitempty"`
	ContentType   string           `json:"content_type"`
	Vibe          algorithm.Vibe   `json:"vibe,omitempty"`
	Quality       float64          `json:"quality"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Viewer carries the requesting user's signals.
type Viewer struct {
	UserID    string              `json:"user_id"`
	Vibe      algorithm.Vibe      `json:"vibe,omitempty"`
	Intent    algorithm.Intent    `json:"intent,omitempty"`
	Following map[string]struct{} `json:"-"`
	Mutuals   map[string]int      `json:"-"` // creator id -> mutual connection count
}

// Follows reports whether the viewer follows creatorID.
func (v Viewer) Follows(creatorID string) bool {
	_, ok := v.Following[creatorID]
	return ok
}

// Components is the sub-score breakdown of one item.
type Components struct {
	Base   float64 `json:"base"`
	Vibe   float64 `json:"vibe"`
	Intent float64 `json:"intent"`
	Social float64 `json:"social"`
}

// ScoredItem is an item with its final score.
type ScoredItem struct {
	Item
	Components Components `json:"components"`
	Score      float64    `json:"final_score"`
}

// Scorer turns items into scored items for one viewer under one parameter snapshot.
type Scorer struct {
	Params           algorithm.Snapshot
	HalfLife         time.Duration
	MutualSaturation int
	Now              time.Time
}

// Score computes the four sub-scores and their weighted sum.
func (s Scorer) Score(v Viewer, it Item) ScoredItem {
	c := Components{
		Base:   s.base(it),
		Vibe:   s.vibe(v, it),
		Intent: s.intent(v, it),
		Social: s.social(v, it),
	}
	w := s.Params.Weights
	return ScoredItem{
		Item:       it,
		Components: c,
		Score:      w.Base*c.Base + w.Vibe*c.Vibe + w.Intent*c.Intent + w.Social*c.Social,
	}
}

// ScoreAll scores every item except those authored by the viewer.
func (s Scorer) ScoreAll(v Viewer, items []Item) []ScoredItem {
	out := make([]ScoredItem, 0, len(items))
	for _, it := range items {
		if v.UserID != "" && it.CreatorID == v.UserID {
			continue
		}
		out = append(out, s.Score(v, it))
	}
	return out
}

func (s Scorer) base(it Item) float64 {
	halfLife := s.HalfLife
	if halfLife <= 0 {
		halfLife = 48 * time.Hour
	}
	age := s.Now.Sub(it.CreatedAt)
	if age < 0 || it.CreatedAt.IsZero() {
		age = 0
	}
	freshness := math.Exp2(-age.Hours() / halfLife.Hours())
	return qualityShare*clamp01(it.Quality) + freshnessShare*freshness
}

func (s Scorer) vibe(v Viewer, it Item) float64 {
	if val, ok := s.Params.Vibe.Lookup(v.Vibe, it.Vibe); ok {
		return clamp01(val)
	}
	return neutral
}

func (s Scorer) intent(v Viewer, it Item) float64 {
	if val, ok := s.Params.Intent.Lookup(v.Intent, it.CreatorIntent); ok {
		return clamp01(val)
	}
	return neutral
}

func (s Scorer) social(v Viewer, it Item) float64 {
	if v.Follows(it.CreatorID) {
		return 1
	}
	saturation := s.MutualSaturation
	if saturation <= 0 {
		saturation = 5
	}
	return math.Min(1, float64(v.Mutuals[it.CreatorID])/float64(saturation))
}

// Rank orders items by score desc, then created_at desc, then id asc.
func Rank(items []ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
