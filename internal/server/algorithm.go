package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
	"github.com/mohammad-safakhou/vibeops/internal/feed"
	"github.com/mohammad-safakhou/vibeops/internal/helpers"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/metrics"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

type algorithmStore interface {
	SaveAlgorithmConfig(ctx context.Context, p store.SaveConfigParams, now time.Time) (store.AlgorithmConfigRecord, error)
	ActivateAlgorithmConfig(ctx context.Context, t algorithm.ConfigType, version int) (store.AlgorithmConfigRecord, error)
	ActiveAlgorithmConfigs(ctx context.Context) ([]store.AlgorithmConfigRecord, error)
	ActiveAlgorithmConfig(ctx context.Context, t algorithm.ConfigType) (store.AlgorithmConfigRecord, bool, error)
	ListAlgorithmConfigHistory(ctx context.Context, t algorithm.ConfigType, limit int) ([]store.AlgorithmConfigRecord, error)
}

// snapshotCache serves the active parameters and drops them on change.
type snapshotCache interface {
	Active(ctx context.Context) (algorithm.Snapshot, error)
	Invalidate(ctx context.Context) error
}

// allocator runs the feed pipeline over caller-supplied inputs.
type allocator interface {
	Allocate(viewer feed.Viewer, items []feed.Item, params algorithm.Snapshot) feed.Allocation
}

// AlgorithmHandler manages the versioned feed algorithm configs.
type AlgorithmHandler struct {
	store  algorithmStore
	cache  snapshotCache
	engine allocator
	log    *logger.Logger
	now    func() time.Time
}

func NewAlgorithmHandler(st algorithmStore, cache snapshotCache, engine allocator, log *logger.Logger) *AlgorithmHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AlgorithmHandler{store: st, cache: cache, engine: engine, log: log.Named("algorithm"), now: time.Now}
}

// Register mounts the algorithm routes. Auth and scope checks are applied by the caller.
func (h *AlgorithmHandler) Register(g *echo.Group) {
	g.GET("/configs", h.listActive)
	g.GET("/configs/:type", h.getActive)
	g.PUT("/configs/:type", h.save)
	g.GET("/configs/:type/history", h.history)
	g.POST("/configs/:type/:version/activate", h.activate)
	g.GET("/schemas/:type", h.schema)
	g.POST("/preview", h.preview)
}

func (h *AlgorithmHandler) listActive(c echo.Context) error {
	ctx := c.Request().Context()
	snap, err := h.cache.Active(ctx)
	if err != nil {
		return httpError(err)
	}
	recs, err := h.store.ActiveAlgorithmConfigs(ctx)
	if err != nil {
		return httpError(err)
	}
	out := SnapshotResponse{Snapshot: snap, Configs: make([]ConfigResponse, 0, len(recs))}
	for _, rec := range recs {
		out.Configs = append(out.Configs, h.describe(rec))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AlgorithmHandler) getActive(c echo.Context) error {
	t, err := algorithm.ParseConfigType(c.Param("type"))
	if err != nil {
		return httpError(err)
	}
	rec, ok, err := h.store.ActiveAlgorithmConfig(c.Request().Context(), t)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		// nothing saved yet: report the built-in default as version 0
		def, err := algorithm.Defaults().Get(t)
		if err != nil {
			return httpError(err)
		}
		data, err := json.Marshal(def)
		if err != nil {
			return httpError(err)
		}
		rec = store.AlgorithmConfigRecord{Type: t, Version: 0, Data: data, IsActive: true}
	}
	return c.JSON(http.StatusOK, h.describe(rec))
}

//	@Summary	Save a new algorithm config version
//	@Tags		algorithm
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		type	path		string				true	"weights|vibe|intent|diversity"
//	@Param		payload	body		SaveConfigRequest	true	"Config"
//	@Success	201		{object}	ConfigResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/ops/algorithm/configs/{type} [put]
func (h *AlgorithmHandler) save(c echo.Context) error {
	t, err := algorithm.ParseConfigType(c.Param("type"))
	if err != nil {
		return httpError(err)
	}
	var req SaveConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if _, err := algorithm.Decode(t, req.ConfigData); err != nil {
		metrics.ConfigSaves.WithLabelValues(string(t), "rejected").Inc()
		return httpError(err)
	}
	ctx := c.Request().Context()
	rec, err := h.store.SaveAlgorithmConfig(ctx, store.SaveConfigParams{
		Type:          t,
		Data:          req.ConfigData,
		CreatedBy:     actor(c),
		Note:          helpers.PlainText(req.Note, 500),
		EffectiveFrom: req.EffectiveFrom,
	}, h.now())
	metrics.ConfigSaves.WithLabelValues(string(t), metrics.Outcome(err)).Inc()
	if err != nil {
		return httpError(err)
	}
	if rec.IsActive {
		h.invalidate(ctx)
	}
	h.log.Info("algorithm config saved", "config_type", t, "version", rec.Version, "active", rec.IsActive, "by", actor(c))
	return c.JSON(http.StatusCreated, h.describe(rec))
}

func (h *AlgorithmHandler) history(c echo.Context) error {
	t, err := algorithm.ParseConfigType(c.Param("type"))
	if err != nil {
		return httpError(err)
	}
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		return err
	}
	recs, err := h.store.ListAlgorithmConfigHistory(c.Request().Context(), t, limit)
	if err != nil {
		return httpError(err)
	}
	out := make([]ConfigResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, h.describe(rec))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AlgorithmHandler) activate(c echo.Context) error {
	t, err := algorithm.ParseConfigType(c.Param("type"))
	if err != nil {
		return httpError(err)
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "version must be a positive integer")
	}
	ctx := c.Request().Context()
	rec, err := h.store.ActivateAlgorithmConfig(ctx, t, version)
	if err != nil {
		return httpError(err)
	}
	h.invalidate(ctx)
	h.log.Info("algorithm config activated", "config_type", t, "version", version, "by", actor(c))
	return c.JSON(http.StatusOK, h.describe(rec))
}

func (h *AlgorithmHandler) schema(c echo.Context) error {
	t, err := algorithm.ParseConfigType(c.Param("type"))
	if err != nil {
		return httpError(err)
	}
	doc, err := algorithm.Schema(t)
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(doc))
}

//	@Summary	Score candidates under a draft parameter set
//	@Tags		algorithm
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		PreviewRequest	true	"Draft overrides, viewer and candidates"
//	@Success	200		{object}	PreviewResponse
//	@Router		/api/ops/algorithm/preview [post]
func (h *AlgorithmHandler) preview(c echo.Context) error {
	var req PreviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	snap, err := h.cache.Active(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	out, err := Preview(h.engine, snap, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// Preview applies req's overrides to a copy of snap and allocates req's candidates.
func Preview(engine allocator, snap algorithm.Snapshot, req PreviewRequest) (PreviewResponse, error) {
	snap = cloneSnapshot(snap)
	for t, raw := range req.Overrides {
		cfg, err := algorithm.Decode(t, raw)
		if err != nil {
			return PreviewResponse{}, err
		}
		snap.Apply(cfg, 0)
	}

	viewer := feed.Viewer{
		UserID:    req.Viewer.UserID,
		Vibe:      req.Viewer.Vibe,
		Intent:    req.Viewer.Intent,
		Following: make(map[string]struct{}, len(req.Viewer.Following)),
		Mutuals:   req.Viewer.Mutuals,
	}
	for _, id := range req.Viewer.Following {
		viewer.Following[id] = struct{}{}
	}
	alloc := engine.Allocate(viewer, req.Items, snap)
	items := alloc.Page(req.Page)
	if items == nil {
		items = []feed.ScoredItem{}
	}
	out := PreviewResponse{
		Page:       feed.Page{Number: req.Page, Items: items, HasMore: req.Page+1 < len(alloc.Pages), Versions: snap.Versions},
		TotalPages: len(alloc.Pages),
		Deferred:   alloc.Deferred,
		Snapshot:   snap,
	}
	for _, it := range alloc.Dropped {
		out.Dropped = append(out.Dropped, it.ID)
	}
	return out, nil
}

func (h *AlgorithmHandler) invalidate(ctx context.Context) {
	if err := h.cache.Invalidate(ctx); err != nil {
		h.log.Warn("snapshot cache invalidation failed", "error", err)
	}
}

// describe adds the derived facts the console shows next to a config.
func (h *AlgorithmHandler) describe(rec store.AlgorithmConfigRecord) ConfigResponse {
	out := ConfigResponse{AlgorithmConfigRecord: rec}
	out.Scheduled = !rec.IsActive && rec.ActivatedAt == nil && rec.EffectiveFrom != nil && rec.EffectiveFrom.After(h.now())
	cfg, err := algorithm.Decode(rec.Type, rec.Data)
	if err != nil {
		return out
	}
	switch v := cfg.(type) {
	case algorithm.ScoringWeights:
		sum := v.Sum()
		out.WeightSum = &sum
	case algorithm.VibeMatrix:
		sym := v.IsSymmetric()
		out.Symmetric = &sym
	case algorithm.IntentMatrix:
		sym := v.IsSymmetric()
		out.Symmetric = &sym
	}
	return out
}

func cloneSnapshot(s algorithm.Snapshot) algorithm.Snapshot {
	versions := make(map[algorithm.ConfigType]int, len(s.Versions))
	for k, v := range s.Versions {
		versions[k] = v
	}
	s.Versions = versions
	return s
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}
