package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/pkg/kafka"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/book-market/pkg/outbox/domain"
	"go.uber.org/zap"
)

type EventHandler interface {
	HandleOrderPaid(ctx context.Context, eventID int64, event generalDomain.OrderPaidEvent) error
	HandleOrderStatusChanged(ctx context.Context, eventID int64, event generalDomain.OrderStatusChangedEvent) error
	HandleSettlementFailed(ctx context.Context, eventID int64, event generalDomain.SettlementFailedEvent) error
}

type Consumer struct {
	handler EventHandler
	logger  *zap.Logger
}

func NewConsumer(handler EventHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler: handler,
		logger:  logger,
	}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{generalDomain.OrderEventsTopic},
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

func decode[T any](payload json.RawMessage) (T, error) {
	var event T
	err := json.Unmarshal(payload, &event)

	return event, err
}

// processMessage returns an error only for failures worth redelivering.
// Malformed messages are logged and skipped.
func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
		zap.String("key", string(msg.Key)),
	)

	var envelope outboxDomain.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return nil
	}

	if envelope.EventID == 0 {
		mylogger.Warn(ctx, c.logger, "Envelope without event id, skipping", zap.String("event", envelope.Event))
		return nil
	}

	switch envelope.Event {
	case generalDomain.EventOrderPaid:
		event, err := decode[generalDomain.OrderPaidEvent](envelope.Payload)
		if err != nil {
			c.logMalformed(ctx, envelope, err)
			return nil
		}

		return c.handler.HandleOrderPaid(ctx, envelope.EventID, event)
	case generalDomain.EventOrderStatusChanged:
		event, err := decode[generalDomain.OrderStatusChangedEvent](envelope.Payload)
		if err != nil {
			c.logMalformed(ctx, envelope, err)
			return nil
		}

		return c.handler.HandleOrderStatusChanged(ctx, envelope.EventID, event)
	case generalDomain.EventSettlementFailed:
		event, err := decode[generalDomain.SettlementFailedEvent](envelope.Payload)
		if err != nil {
			c.logMalformed(ctx, envelope, err)
			return nil
		}

		return c.handler.HandleSettlementFailed(ctx, envelope.EventID, event)
	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event", envelope.Event))
		return nil
	}
}

func (c *Consumer) logMalformed(ctx context.Context, envelope outboxDomain.Envelope, err error) {
	mylogger.Error(
		ctx,
		c.logger,
		"Error parsing event payload",
		zap.String("event", envelope.Event),
		zap.Int64("event_id", envelope.EventID),
		zap.Error(err),
	)
}
