package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/metrics"
)

// SnapshotKey holds the cached active parameter snapshot.
const SnapshotKey = "algorithm:snapshot"

// KV is the subset of the redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Loader reads the active snapshot from the source of truth.
type Loader interface {
	ActiveSnapshot(ctx context.Context) (algorithm.Snapshot, error)
}

// Params caches the active algorithm snapshot in Redis. A Redis failure falls
// back to the loader so feeds keep working while the cache is down.
type Params struct {
	kv     KV
	loader Loader
	ttl    time.Duration
	log    *logger.Logger
}

// NewParams returns a cache with the given TTL. kv may be nil or ttl zero to disable caching.
func NewParams(kv KV, loader Loader, ttl time.Duration, log *logger.Logger) *Params {
	if log == nil {
		log = logger.Nop()
	}
	return &Params{kv: kv, loader: loader, ttl: ttl, log: log.Named("params_cache")}
}

// Active returns the cached snapshot or loads and caches it.
func (p *Params) Active(ctx context.Context) (algorithm.Snapshot, error) {
	if p.kv == nil || p.ttl <= 0 {
		return p.loader.ActiveSnapshot(ctx)
	}
	raw, err := p.kv.Get(ctx, SnapshotKey).Result()
	switch {
	case err == nil:
		var snap algorithm.Snapshot
		if jerr := json.Unmarshal([]byte(raw), &snap); jerr == nil {
			metrics.ConfigCacheLookups.WithLabelValues("hit").Inc()
			return snap, nil
		}
		p.log.Warn("discarding undecodable cached snapshot")
		metrics.ConfigCacheLookups.WithLabelValues("miss").Inc()
	case errors.Is(err, redis.Nil):
		metrics.ConfigCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.ConfigCacheLookups.WithLabelValues("error").Inc()
		p.log.Warn("snapshot cache read failed", "error", err)
		return p.loader.ActiveSnapshot(ctx)
	}

	snap, err := p.loader.ActiveSnapshot(ctx)
	if err != nil {
		return algorithm.Snapshot{}, err
	}
	if data, err := json.Marshal(snap); err == nil {
		if err := p.kv.Set(ctx, SnapshotKey, data, p.ttl).Err(); err != nil {
			p.log.Warn("snapshot cache write failed", "error", err)
		}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot. Call after any activation change.
func (p *Params) Invalidate(ctx context.Context) error {
	if p.kv == nil {
		return nil
	}
	return p.kv.Del(ctx, SnapshotKey).Err()
}
