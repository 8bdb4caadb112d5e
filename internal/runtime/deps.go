package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

// Deps bundles the shared connections every command needs.
type Deps struct {
	Store     *store.Store
	Redis     *redis.Client
	Registry  *streams.SchemaRegistry
	Publisher *streams.Publisher
}

// OpenDeps connects to Postgres and Redis and loads the event schemas.
func OpenDeps(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Deps, error) {
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rdb := NewRedis(cfg.Storage.Redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = st.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	reg, err := streams.NewBaseRegistry()
	if err != nil {
		_ = st.Close()
		_ = rdb.Close()
		return nil, err
	}
	rt := cfg.Realtime.Normalize()
	log.Info("dependencies ready", "redis", cfg.Storage.Redis.Addr(), "stream", rt.Stream, "event_types", reg.EventTypes())
	return &Deps{
		Store:     st,
		Redis:     rdb,
		Registry:  reg,
		Publisher: streams.NewPublisher(rdb, reg, rt.Stream, rt.StreamMaxLen),
	}, nil
}

// NewRedis builds a client from config without connecting.
func NewRedis(cfg config.RedisConfig) *redis.Client {
	opts := &redis.Options{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	return redis.NewClient(opts)
}

func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
