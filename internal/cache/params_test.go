package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
)

type fakeKV struct {
	data    map[string]string
	getErr  error
	sets    int
	deleted []string
	lastTTL time.Duration
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.sets++
	f.lastTTL = expiration
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

type countingLoader struct {
	calls int
	snap  algorithm.Snapshot
	err   error
}

func (l *countingLoader) ActiveSnapshot(ctx context.Context) (algorithm.Snapshot, error) {
	l.calls++
	return l.snap, l.err
}

func TestParamsCachesSnapshot(t *testing.T) {
	snap := algorithm.Defaults()
	snap.Versions[algorithm.TypeWeights] = 3
	loader := &countingLoader{snap: snap}
	kv := newFakeKV()
	p := NewParams(kv, loader, time.Minute, nil)

	got, err := p.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, got.Versions[algorithm.TypeWeights])
	assert.Equal(t, 1, kv.sets)
	assert.Equal(t, time.Minute, kv.lastTTL)

	got, err = p.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls, "second lookup should be served from cache")
	assert.Equal(t, snap.Weights, got.Weights)
}

func TestParamsInvalidateForcesReload(t *testing.T) {
	loader := &countingLoader{snap: algorithm.Defaults()}
	kv := newFakeKV()
	p := NewParams(kv, loader, time.Minute, nil)

	_, err := p.Active(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Invalidate(context.Background()))
	assert.Equal(t, []string{SnapshotKey}, kv.deleted)

	_, err = p.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}

func TestParamsFallsBackOnRedisError(t *testing.T) {
	loader := &countingLoader{snap: algorithm.Defaults()}
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")
	p := NewParams(kv, loader, time.Minute, nil)

	_, err := p.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, 0, kv.sets)
}

func TestParamsDiscardsCorruptEntry(t *testing.T) {
	loader := &countingLoader{snap: algorithm.Defaults()}
	kv := newFakeKV()
	kv.data[SnapshotKey] = "{not json"
	p := NewParams(kv, loader, time.Minute, nil)

	_, err := p.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)

	var cached algorithm.Snapshot
	require.NoError(t, json.Unmarshal([]byte(kv.data[SnapshotKey]), &cached))
}

func TestParamsDisabled(t *testing.T) {
	loader := &countingLoader{err: errors.New("db down")}
	p := NewParams(nil, loader, time.Minute, nil)
	_, err := p.Active(context.Background())
	assert.Error(t, err)
	assert.NoError(t, p.Invalidate(context.Background()))
}
