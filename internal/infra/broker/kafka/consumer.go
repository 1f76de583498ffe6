package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IBM/sarama"

	appoutbox "roomies/internal/app/outbox"
	infraoutbox "roomies/internal/infra/outbox"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: g, handler: handler}, nil
}

// Run consumes until ctx is cancelled. A cancelled context is a clean stop.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{handler: c.handler}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handler.Handle(sess.Context(), message); err != nil {
			// unmarked messages are redelivered after the next rebalance
			continue
		}
		sess.MarkMessage(message, "")
	}
	return nil
}

// Inbox deduplicates deliveries by event id.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// EventDispatcher decodes CloudEvents envelopes and hands each event to Handler once.
type EventDispatcher struct {
	Inbox   Inbox
	Handler appoutbox.Handler
	Logger  *slog.Logger
}

func (d EventDispatcher) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	rec, err := infraoutbox.DecodeEnvelope(msg.Value)
	if err != nil {
		d.logger().Warn("dropping undecodable event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == "traceparent" {
			rec.Headers["traceparent"] = string(h.Value)
		}
	}
	if d.Inbox != nil {
		seen, err := d.Inbox.Seen(ctx, rec.ID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	if err := d.Handler.Handle(ctx, rec); err != nil {
		d.logger().Error("event handler failed", "event_id", rec.ID, "event", rec.Name, "error", err)
		if d.Inbox != nil {
			if ferr := d.Inbox.Forget(ctx, rec.ID); ferr != nil {
				return errors.Join(err, ferr)
			}
		}
		return err
	}
	return nil
}

func (d EventDispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
