package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

type statsStore interface {
	Ping(ctx context.Context) error
	SystemStats(ctx context.Context) (store.SystemStats, error)
}

type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// LagFunc reports the dispatcher backlog on the ops stream.
type LagFunc func(ctx context.Context) (streams.LagMetrics, error)

// StatusHandler reports dependency health for the live ops page.
type StatusHandler struct {
	store  statsStore
	redis  redisPinger
	lag    LagFunc
	stream string
	group  string
	now    func() time.Time
}

func NewStatusHandler(st statsStore, rdb redisPinger, lag LagFunc, stream, group string) *StatusHandler {
	return &StatusHandler{store: st, redis: rdb, lag: lag, stream: stream, group: group, now: time.Now}
}

func (h *StatusHandler) Register(g *echo.Group) {
	g.GET("/system-status", h.status)
}

//	@Summary	Dependency and backlog health
//	@Tags		ops
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	SystemStatusResponse
//	@Router		/api/ops/live/system-status [get]
func (h *StatusHandler) status(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out := SystemStatusResponse{Status: "ok", Checks: map[string]string{}, Time: h.now().UTC()}
	fail := func(name string, err error) {
		out.Checks[name] = err.Error()
		out.Status = "degraded"
	}

	if err := h.store.Ping(ctx); err != nil {
		fail("postgres", err)
	} else {
		out.Checks["postgres"] = "ok"
		if stats, err := h.store.SystemStats(ctx); err != nil {
			fail("stats", err)
		} else {
			out.Stats = &stats
		}
	}

	if h.redis == nil {
		out.Checks["redis"] = "not configured"
		out.Status = "degraded"
	} else if err := h.redis.Ping(ctx).Err(); err != nil {
		fail("redis", err)
	} else {
		out.Checks["redis"] = "ok"
	}

	if h.lag != nil {
		if m, err := h.lag(ctx); err != nil {
			fail("realtime", err)
		} else {
			rt := &RealtimeStatus{
				Stream:    h.stream,
				Group:     h.group,
				Length:    m.Length,
				Pending:   m.Pending,
				Lag:       m.Lag,
				Consumers: m.Consumers,
			}
			if m.OldestIdle > 0 {
				rt.OldestIdle = m.OldestIdle.String()
			}
			out.Realtime = rt
			out.Checks["realtime"] = "ok"
			if m.Length > 0 && m.Consumers == 0 {
				out.Checks["realtime"] = "no dispatcher attached"
				out.Status = "degraded"
			}
		}
	}
	return c.JSON(http.StatusOK, out)
}
