package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/cache"
	"github.com/mohammad-safakhou/vibeops/internal/feed"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/metrics"
	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
	"github.com/mohammad-safakhou/vibeops/internal/realtime"
	"github.com/mohammad-safakhou/vibeops/internal/runtime"
	"github.com/mohammad-safakhou/vibeops/internal/search"
)

// Handlers are the route groups mounted by Routes. Nil handlers are skipped.
type Handlers struct {
	Auth       *AuthHandler
	Algorithm  *AlgorithmHandler
	Feed       *FeedHandler
	Payouts    *PayoutHandler
	Ops        *OpsHandler
	Status     *StatusHandler
	Moderation *ModerationHandler
}

// NewEcho builds the echo instance with the shared middleware stack.
func NewEcho(log *logger.Logger, allowedOrigins []string) *echo.Echo {
	if log == nil {
		log = logger.Nop()
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = runtime.EchoValidator{}
	e.HTTPErrorHandler = errorHandler(log.Named("http"))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestMetrics())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "Cookie", IdempotencyHeader},
		AllowCredentials: true,
	}))
	return e
}

// Routes mounts every handler. Ops routes require a token carrying the matching scope.
func Routes(e *echo.Echo, secret []byte, h Handlers, metricsPath string) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if metricsPath != "" {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("/api")
	if h.Auth != nil {
		h.Auth.Register(api.Group("/auth"))
	}
	authed := runtime.EchoAuthMiddleware(secret)
	if h.Feed != nil {
		h.Feed.Register(api.Group("/feed", authed))
	}
	if h.Payouts != nil {
		h.Payouts.RegisterCreator(api.Group("/payouts", authed))
	}

	ops := api.Group("/ops", authed)
	if h.Algorithm != nil {
		h.Algorithm.Register(ops.Group("/algorithm", runtime.RequireScopes(runtime.ScopeAlgorithm)))
	}
	if h.Payouts != nil {
		h.Payouts.RegisterFinance(ops.Group("/finance", runtime.RequireScopes(runtime.ScopeFinance)))
	}
	if h.Ops != nil {
		h.Ops.Register(ops.Group("/users", runtime.RequireScopes(runtime.ScopeModeration)))
	}
	if h.Status != nil {
		h.Status.Register(ops.Group("/live", runtime.RequireAnyScope(runtime.OpsScopes...)))
	}
	if h.Moderation != nil {
		h.Moderation.Register(ops.Group("/moderation", runtime.RequireScopes(runtime.ScopeModeration)))
	}
}

func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			code := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(httpError(err), &he) {
					code = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequests.WithLabelValues(route, c.Request().Method, strconv.Itoa(code/100)+"xx").Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// streamHistory adapts streams.Replay to the ops handler.
type streamHistory struct {
	deps   *runtime.Deps
	stream string
}

func (s streamHistory) Replay(ctx context.Context, subject string, count int64) ([]streams.Envelope, error) {
	return streams.Replay(ctx, s.deps.Redis, s.deps.Registry, s.stream, subject, count)
}

// Background holds the long-running workers shared by serve and worker.
type Background struct {
	Cache     *cache.Params
	Index     *search.Index
	Scheduler *Scheduler
}

// StartBackground opens the search index and starts the dispatcher and scheduler as configured.
func StartBackground(ctx context.Context, cfg *config.Config, deps *runtime.Deps, dispatch bool, log *logger.Logger) (*Background, error) {
	rt := cfg.Realtime.Normalize()
	bg := &Background{Cache: cache.NewParams(deps.Redis, deps.Store, cfg.Feed.ConfigCacheTTL, log)}

	if cfg.Search.Enabled {
		idx, err := search.Open(cfg.Search, log)
		if err != nil {
			return nil, err
		}
		bg.Index = idx
		go func() {
			if _, err := idx.Reindex(ctx, deps.Store, true); err != nil {
				log.Warn("initial search index build failed", "error", err)
			}
		}()
	}

	if dispatch {
		if err := streams.EnsureGroup(ctx, deps.Redis, rt.Stream, rt.Group); err != nil {
			return nil, err
		}
		consumer := streams.NewConsumer(deps.Redis, deps.Registry, rt.Group, consumerName())
		bus := realtime.NewBus(deps.Redis, rt.ChannelPrefix, log)
		d := realtime.NewDispatcher(consumer, bus, rt.Stream, realtime.DispatcherOptions{}, log)
		go func() {
			if err := d.Run(ctx); err != nil {
				log.Error("dispatcher exited", "error", err)
			}
		}()
	}

	var reindex reindexer
	if bg.Index != nil {
		reindex = bg.Index
	}
	sched, err := NewScheduler(cfg.Scheduler, deps.Redis, log, MaintenanceJobs(deps.Store, bg.Cache, reindex, log)...)
	if err != nil {
		return nil, err
	}
	sched.Start(ctx)
	bg.Scheduler = sched
	return bg, nil
}

func (b *Background) Close() {
	if b != nil && b.Index != nil {
		_ = b.Index.Close()
	}
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "vibeops"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Run serves the HTTP API until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}
	if cfg.Server.AutoMigrate {
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return err
		}
		if err := Migrate(cfg.Server.MigrationsDir, dsn, "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	deps, err := runtime.OpenDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	bg, err := StartBackground(ctx, cfg, deps, cfg.Realtime.Dispatch, log)
	if err != nil {
		return err
	}
	defer bg.Close()

	rt := cfg.Realtime.Normalize()
	engine := feed.NewEngine(deps.Store, bg.Cache, cfg.Feed, log)
	lag := func(ctx context.Context) (streams.LagMetrics, error) {
		return streams.GroupLag(ctx, deps.Redis, rt.Stream, rt.Group)
	}
	h := Handlers{
		Auth:      NewAuthHandler(deps.Store, secret, cfg.Server.TokenTTL, cfg.General.Env == "prod"),
		Algorithm: NewAlgorithmHandler(deps.Store, bg.Cache, engine, log),
		Feed:      NewFeedHandler(engine),
		Payouts:   NewPayoutHandler(deps.Store, deps.Publisher, cfg.Payouts, log),
		Ops:       NewOpsHandler(deps.Store, deps.Registry, deps.Publisher, streamHistory{deps: deps, stream: rt.Stream}, log),
		Status:    NewStatusHandler(deps.Store, deps.Redis, lag, rt.Stream, rt.Group),
	}
	if bg.Index != nil {
		h.Moderation = NewModerationHandler(bg.Index, deps.Store)
	}

	metricsPath := ""
	if cfg.Telemetry.Enabled {
		metricsPath = cfg.Telemetry.MetricsPath
	}
	e := NewEcho(log, cfg.Server.AllowedOrigins)
	Routes(e, secret, h, metricsPath)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Address)
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
