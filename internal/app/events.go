package app

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/domain/event"
	"github.com/xenking/burger-ledger/internal/sink"
	"github.com/xenking/burger-ledger/internal/sink/amqpsink"
	"github.com/xenking/burger-ledger/internal/sink/kafkasink"
	"github.com/xenking/burger-ledger/internal/sink/natssink"
)

type closer interface {
	Close() error
}

// newEventSink builds a fanout over every configured sink. The returned
// function closes them all.
func newEventSink(lg *zap.Logger, cfg EventsConfig) (event.Sink, func(), error) {
	var (
		sinks   sink.Fanout
		closers []closer
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				lg.Warn("Close event sink", zap.Error(err))
			}
		}
	}

	if cfg.NATSURL != "" {
		s, err := natssink.Dial(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrap(err, "nats sink")
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
		lg.Info("Publishing events to NATS", zap.String("subject", cfg.NATSSubject))
	}
	if len(cfg.KafkaBrokers) > 0 {
		s := kafkasink.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, s)
		closers = append(closers, s)
		lg.Info("Publishing events to Kafka", zap.String("topic", cfg.KafkaTopic))
	}
	if cfg.AMQPURL != "" {
		s, err := amqpsink.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrap(err, "amqp sink")
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
		lg.Info("Publishing events to RabbitMQ", zap.String("exchange", cfg.AMQPExchange))
	}
	if cfg.Log || len(sinks) == 0 {
		sinks = append(sinks, sink.NewLog(lg.Named("events")))
	}

	return sinks, closeAll, nil
}
