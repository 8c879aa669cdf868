package natssink

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/burger-ledger/internal/domain/event"
)

func getNATSURL(t *testing.T) string {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Timeout(time.Second))
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	conn.Close()
	return url
}

func paymentEvent() event.Event {
	return event.Event{
		ID:      "evt-1",
		Type:    event.PaymentCompleted,
		OrderID: 7,
		At:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Payment: &event.Payment{
			Payer:  "alice",
			Payee:  "shop",
			Amount: decimal.NewFromInt(300),
		},
	}
}

func TestSink_Publish(t *testing.T) {
	url := getNATSURL(t)
	subject := "ledger-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	consumer, err := nats.Connect(url)
	require.NoError(t, err)
	defer consumer.Close()
	sub, err := consumer.SubscribeSync(subject + ".>")
	require.NoError(t, err)
	require.NoError(t, consumer.Flush())

	s, err := Dial(url, subject)
	require.NoError(t, err)

	e := paymentEvent()
	require.NoError(t, s.Publish(context.Background(), e))
	require.NoError(t, s.Close())

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, subject+".payment.completed", msg.Subject)
	assert.Equal(t, e.ID, msg.Header.Get(nats.MsgIdHdr))
	assert.JSONEq(t, string(e.Marshal()), string(msg.Data))
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial("nats://127.0.0.1:1", "ledger")
	require.Error(t, err)
}
