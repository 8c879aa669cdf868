// Package sink provides event.Sink implementations that are not tied to a
// particular broker.
package sink

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/burger-ledger/internal/domain/event"
)

// Fanout publishes every event to all of its sinks concurrently.
type Fanout []event.Sink

// Publish returns the first error reported by any sink. Every sink is
// attempted regardless.
func (f Fanout) Publish(ctx context.Context, e event.Event) error {
	switch len(f) {
	case 0:
		return nil
	case 1:
		return f[0].Publish(ctx, e)
	}

	var g errgroup.Group
	for _, s := range f {
		g.Go(func() error {
			return s.Publish(ctx, e)
		})
	}
	return g.Wait()
}

// Log writes every event to a zap logger.
type Log struct {
	lg *zap.Logger
}

// NewLog returns a Log sink writing to lg.
func NewLog(lg *zap.Logger) *Log {
	return &Log{lg: lg}
}

// Publish implements event.Sink.
func (l *Log) Publish(_ context.Context, e event.Event) error {
	l.lg.Info("Ledger event",
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.Uint64("order_id", e.OrderID),
		zap.ByteString("payload", e.Marshal()),
	)
	return nil
}
