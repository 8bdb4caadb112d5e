package streams

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LagMetrics captures stream depth and consumer group progress.
type LagMetrics struct {
	Length     int64         `json:"length"`
	Pending    int64         `json:"pending"`
	Lag        int64         `json:"lag"` // -1 when the group is unknown
	Consumers  int64         `json:"consumers"`
	OldestIdle time.Duration `json:"oldest_idle"`
}

// GroupLag returns lag metrics for the provided stream/group.
func GroupLag(ctx context.Context, client redis.Cmdable, stream, group string) (LagMetrics, error) {
	if client == nil {
		return LagMetrics{}, fmt.Errorf("redis client is nil")
	}
	if stream == "" || group == "" {
		return LagMetrics{}, fmt.Errorf("stream and group are required")
	}

	m := LagMetrics{Lag: -1}
	length, err := client.XLen(ctx, stream).Result()
	if err != nil {
		return LagMetrics{}, fmt.Errorf("xlen: %w", err)
	}
	m.Length = length
	if length == 0 {
		return m, nil
	}

	groups, err := client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return LagMetrics{}, fmt.Errorf("xinfo groups: %w", err)
	}
	for _, info := range groups {
		if info.Name != group {
			continue
		}
		m.Pending = info.Pending
		m.Lag = info.Lag
		m.Consumers = int64(info.Consumers)
		break
	}

	if m.Pending > 0 {
		entries, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  group,
			Start:  "-",
			End:    "+",
			Count:  1,
		}).Result()
		if err != nil && err != redis.Nil {
			return LagMetrics{}, fmt.Errorf("xpendingext: %w", err)
		}
		if len(entries) > 0 {
			m.OldestIdle = entries[0].Idle
		}
	}
	return m, nil
}
