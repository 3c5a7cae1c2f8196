package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Handler func(ctx context.Context, topic string, key, value []byte) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic with consumer-group semantics. Offsets are
// committed only after the handler succeeded, so delivery is at-least-once
// and a transient handler failure gets the event redelivered. Handlers have
// to be idempotent; they drop malformed payloads themselves and return nil
// so poison messages never loop.
type Consumer struct {
	reader  reader
	handle  Handler
	topic   string
	groupID string
	log     zerolog.Logger
}

func NewConsumer(brokers, groupID, topic string, h Handler, log zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        strings.Split(brokers, ","),
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       10e3,
			MaxBytes:       10e6,
			MaxWait:        2 * time.Second,
			CommitInterval: time.Second,
		}),
		handle:  h,
		topic:   topic,
		groupID: groupID,
		log:     log,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		_ = c.reader.Close()
	}()

	c.log.Info().
		Str("group", c.groupID).
		Str("topic", c.topic).
		Msg("kafka consumer started")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("kafka consumer shutting down")
				return nil
			}
			c.log.Error().Err(err).Msg("kafka fetch error")
			time.Sleep(time.Second)
			continue
		}

		if c.handle != nil {
			if e := c.handle(ctx, m.Topic, m.Key, m.Value); e != nil {
				// Leave the offset alone so the event comes back on the
				// next redelivery.
				c.log.Error().Err(e).Str("topic", m.Topic).Msg("kafka handler error, offset not committed")
				continue
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.Error().Err(err).Msg("kafka commit error")
		}
	}
}
