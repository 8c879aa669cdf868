package httpmiddleware

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares window counters between replicas. Each fixed window is
// one counter key that expires after two windows.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a limiter backed by client.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ledger:ratelimit:",
	}
}

func (l *RedisLimiter) windowKey(key string, start time.Time) string {
	return l.prefix + key + ":" + strconv.FormatInt(start.UnixNano()/int64(l.window), 10)
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	start := now.Truncate(l.window)
	currKey := l.windowKey(key, start)

	var (
		curr *redis.IntCmd
		prev *redis.StringCmd
	)
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		curr = p.Incr(ctx, currKey)
		p.PExpire(ctx, currKey, 2*l.window)
		prev = p.Get(ctx, l.windowKey(key, start.Add(-l.window)))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, errors.Wrap(err, "count request")
	}
	prevCount, err := prev.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, errors.Wrap(err, "read previous window")
	}

	// The increment above already counts this request.
	d := slidingWindow(l.limit, l.window, float64(prevCount), float64(curr.Val()-1), start, now)
	if !d.Allowed {
		// Rejected requests do not consume the window.
		if err := l.client.Decr(ctx, currKey).Err(); err != nil {
			return d, errors.Wrap(err, "release rejected request")
		}
	}
	return d, nil
}
