// Package redislock serializes order operations across processes with Redis.
package redislock

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/domain/order"
)

const keyPrefix = "ledger:order-lock:"

// releaseScript deletes the lock only if it is still held by our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the lock is held by our token.
var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var _ order.Locker = (*Locker)(nil)

// Config controls lock expiry and polling.
type Config struct {
	// TTL bounds how long a crashed holder can block an order. A live
	// holder extends it every TTL/3.
	TTL time.Duration
	// RetryInterval is the wait between acquisition attempts.
	RetryInterval time.Duration
}

// Locker is an order.Locker backed by Redis SET NX PX.
type Locker struct {
	client *redis.Client
	cfg    Config
}

// New returns a Locker using client.
func New(client *redis.Client, cfg Config) *Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 10 * time.Millisecond
	}
	return &Locker{client: client, cfg: cfg}
}

// Lock polls until the lock for id is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, id order.ID) (func(), error) {
	key := keyPrefix + strconv.FormatUint(uint64(id), 10)
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire %s", key)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	done := make(chan struct{})
	renewed := make(chan struct{})
	go l.renew(ctx, key, token, done, renewed)

	return func() {
		close(done)
		<-renewed

		// Release must run even if the caller's context was cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()

		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			zctx.From(ctx).Warn("Release order lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// renew keeps the lock alive until done is closed.
func (l *Locker) renew(ctx context.Context, key, token string, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)

	ctx = context.WithoutCancel(ctx)
	ttl := strconv.FormatInt(l.cfg.TTL.Milliseconds(), 10)
	ticker := time.NewTicker(l.cfg.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		extendCtx, cancel := context.WithTimeout(ctx, l.cfg.TTL/3)
		held, err := extendScript.Run(extendCtx, l.client, []string{key}, token, ttl).Int()
		cancel()
		switch {
		case err != nil:
			zctx.From(ctx).Warn("Extend order lock", zap.String("key", key), zap.Error(err))
		case held == 0:
			zctx.From(ctx).Warn("Order lock lost", zap.String("key", key))
			return
		}
	}
}
