// Package kafkasink publishes ledger events to a Kafka topic.
package kafkasink

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/burger-ledger/internal/domain/event"
)

// Sink writes events keyed by order ID so that one order's events stay in
// one partition.
type Sink struct {
	w *kafka.Writer
}

// Publish blocks for up to batchTimeout waiting for more messages, so it is
// kept short. Events are written one at a time.
const (
	batchTimeout = 5 * time.Millisecond
	writeTimeout = 5 * time.Second
)

// New returns a Sink producing to topic on brokers.
func New(brokers []string, topic string) *Sink {
	return &Sink{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}}
}

// Publish implements event.Sink.
func (s *Sink) Publish(ctx context.Context, e event.Event) error {
	err := s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key()),
		Value: e.Marshal(),
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	})
	if err != nil {
		return errors.Wrap(err, "kafka write")
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.w.Close()
}
