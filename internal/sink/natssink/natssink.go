// Package natssink publishes ledger events to a NATS subject.
package natssink

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go"

	"github.com/xenking/burger-ledger/internal/domain/event"
)

// Sink publishes each event to Subject.<event type>.
type Sink struct {
	conn    *nats.Conn
	subject string
}

// Dial connects to the NATS server at url.
func Dial(url, subject string) (*Sink, error) {
	conn, err := nats.Connect(url, nats.Name("burger-ledger"))
	if err != nil {
		return nil, errors.Wrap(err, "connect to nats")
	}
	return &Sink{conn: conn, subject: subject}, nil
}

// Publish implements event.Sink.
func (s *Sink) Publish(_ context.Context, e event.Event) error {
	msg := &nats.Msg{
		Subject: s.subject + "." + string(e.Type),
		Header:  nats.Header{},
		Data:    e.Marshal(),
	}
	// JetStream consumers use the header for de-duplication.
	msg.Header.Set(nats.MsgIdHdr, e.ID)
	if err := s.conn.PublishMsg(msg); err != nil {
		return errors.Wrap(err, "nats publish")
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (s *Sink) Close() error {
	return s.conn.Drain()
}
