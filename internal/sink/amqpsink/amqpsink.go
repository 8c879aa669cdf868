// Package amqpsink publishes ledger events to a RabbitMQ fanout exchange.
package amqpsink

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/burger-ledger/internal/domain/event"
)

// Sink publishes persistent JSON messages to one exchange.
type Sink struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex // amqp.Channel is not safe for concurrent publishing
	ch *amqp.Channel
}

// Dial connects to url and declares a durable fanout exchange.
func Dial(url, exchange string) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}
	return &Sink{conn: conn, exchange: exchange, ch: ch}, nil
}

// Publish implements event.Sink.
func (s *Sink) Publish(ctx context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ch.PublishWithContext(ctx, s.exchange, string(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    e.At,
		Body:         e.Marshal(),
	})
	if err != nil {
		return errors.Wrap(err, "amqp publish")
	}
	return nil
}

// Close closes the channel and the connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.Close(); err != nil {
		_ = s.conn.Close()
		return errors.Wrap(err, "close channel")
	}
	return s.conn.Close()
}
