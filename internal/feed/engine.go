package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/metrics"
)

// ErrViewerNotFound is returned when the viewer has no profile.
var ErrViewerNotFound = errors.New("viewer not found")

// Source loads viewers and candidates.
type Source interface {
	Viewer(ctx context.Context, userID string) (Viewer, error)
	Candidates(ctx context.Context, viewerID string, limit int) ([]Item, error)
}

// ParamsProvider returns the active algorithm parameters.
type ParamsProvider interface {
	Active(ctx context.Context) (algorithm.Snapshot, error)
}

// Page is one allocated feed page.
type Page struct {
	Number   int                          `json:"page"`
	Items    []ScoredItem                 `json:"items"`
	HasMore  bool                         `json:"has_more"`
	Versions map[algorithm.ConfigType]int `json:"config_versions"`
}

type Engine struct {
	src    Source
	params ParamsProvider
	cfg    config.FeedConfig
	log    *logger.Logger
	now    func() time.Time
}

func NewEngine(src Source, params ParamsProvider, cfg config.FeedConfig, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{src: src, params: params, cfg: cfg.Normalize(), log: log.Named("feed"), now: time.Now}
}

// BuildPage scores, ranks and allocates the viewer's candidates and returns page n (0-based).
func (e *Engine) BuildPage(ctx context.Context, viewerID string, n int) (Page, error) {
	if n < 0 {
		return Page{}, fmt.Errorf("page must be >= 0")
	}
	start := time.Now()
	defer func() { metrics.FeedBuildSeconds.Observe(time.Since(start).Seconds()) }()

	viewer, err := e.src.Viewer(ctx, viewerID)
	if err != nil {
		return Page{}, err
	}
	params, err := e.params.Active(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("load algorithm params: %w", err)
	}
	items, err := e.src.Candidates(ctx, viewerID, e.cfg.CandidateLimit)
	if err != nil {
		return Page{}, fmt.Errorf("load candidates: %w", err)
	}
	metrics.FeedCandidates.Observe(float64(len(items)))

	alloc := e.Allocate(viewer, items, params)
	metrics.FeedDeferred.Add(float64(alloc.Deferred))
	e.log.Debug("feed built", "viewer_id", viewerID, "candidates", len(items), "pages", len(alloc.Pages), "deferred", alloc.Deferred, "dropped", len(alloc.Dropped))

	page := Page{Number: n, Items: alloc.Page(n), HasMore: n+1 < len(alloc.Pages), Versions: params.Versions}
	if page.Items == nil {
		page.Items = []ScoredItem{}
	}
	return page, nil
}

// Allocate runs the pure scoring pipeline for a viewer and candidate set.
func (e *Engine) Allocate(viewer Viewer, items []Item, params algorithm.Snapshot) Allocation {
	scorer := Scorer{
		Params:           params,
		HalfLife:         e.cfg.FreshnessHalfLife,
		MutualSaturation: e.cfg.MutualSaturation,
		Now:              e.now(),
	}
	scored := scorer.ScoreAll(viewer, items)
	Rank(scored)
	return Allocate(scored, params.Diversity, e.cfg.PageSize)
}
