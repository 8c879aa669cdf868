package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Marshal_Payment(t *testing.T) {
	e := Event{
		ID:      "evt-1",
		Type:    PaymentCompleted,
		OrderID: 7,
		At:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Payment: &Payment{
			Payer:  "alice",
			Payee:  "shop",
			Amount: decimal.NewFromInt(300),
		},
	}

	var got map[string]any
	require.NoError(t, json.Unmarshal(e.Marshal(), &got))

	assert.Equal(t, "evt-1", got["id"])
	assert.Equal(t, "payment.completed", got["type"])
	assert.Equal(t, float64(7), got["order_id"])
	assert.Equal(t, "2024-03-01T12:00:00Z", got["at"])
	assert.Equal(t, map[string]any{
		"payer":  "alice",
		"payee":  "shop",
		"amount": "300",
	}, got["payload"])
	assert.Equal(t, "7", e.Key())
}

func TestEvent_Marshal_Created(t *testing.T) {
	e := Event{
		ID:       "evt-2",
		Type:     OrderCreated,
		OrderID:  0,
		Customer: "bob",
		Total:    decimal.NewFromInt(120),
	}

	var got map[string]any
	require.NoError(t, json.Unmarshal(e.Marshal(), &got))
	assert.Equal(t, map[string]any{
		"customer": "bob",
		"total":    "120",
	}, got["payload"])
}

type failingSink struct {
	calls int
}

func (s *failingSink) Publish(context.Context, Event) error {
	s.calls++
	return errors.New("broker down")
}

func TestNotifier_SwallowsErrors(t *testing.T) {
	s := &failingSink{}
	n := NewNotifier(s)

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Event{ID: "x", Type: OrderCompleted})
	})
	assert.Equal(t, 1, s.calls)
}

func TestNotifier_NilSink(t *testing.T) {
	n := NewNotifier(nil)
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Event{Type: OrderCreated})
	})
}
