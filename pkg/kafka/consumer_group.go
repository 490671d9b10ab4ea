package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

type ConsumerOption func(*ConsumerGroup)

// WithRetryBackoff sets the delay between attempts at a failing message.
// The delay doubles after each attempt up to maxDelay.
func WithRetryBackoff(initial, maxDelay time.Duration) ConsumerOption {
	return func(c *ConsumerGroup) {
		c.initialBackoff = initial
		c.maxBackoff = maxDelay
	}
}

type ConsumerGroup struct {
	brokers        []string
	groupID        string
	topics         []string
	handlerFunc    HandlerFunc
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger
}

func NewConsumerGroup(
	brokers []string,
	groupID string,
	topics []string,
	handlerFunc HandlerFunc,
	logger *zap.Logger,
	opts ...ConsumerOption,
) *ConsumerGroup {
	c := &ConsumerGroup{
		brokers:        brokers,
		groupID:        groupID,
		topics:         topics,
		handlerFunc:    handlerFunc,
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
		logger:         logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run blocks until ctx is cancelled or the group cannot be created.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, config)
	if err != nil {
		return fmt.Errorf("error creating consumer group %s: %w", c.groupID, err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Error closing consumer group", zap.Error(err))
		}
	}()

	go func() {
		for err := range group.Errors() {
			mylogger.Warn(ctx, c.logger, "Consumer group error", zap.Error(err))
		}
	}()

	consumer := &saramaHandler{
		handler:        c.handlerFunc,
		initialBackoff: c.initialBackoff,
		maxBackoff:     c.maxBackoff,
		logger:         c.logger,
		tracer:         otel.Tracer("pkg/kafka/consumer"),
	}

	for {
		err := group.Consume(ctx, c.topics, consumer)
		if err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
			mylogger.Error(ctx, c.logger, "Error consuming in consumer loop", zap.Error(err))
		}

		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer")
			return nil
		}
	}
}

type saramaHandler struct {
	handler        HandlerFunc
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger
	tracer         trace.Tracer
}

func (h *saramaHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *saramaHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *saramaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if !h.process(session.Context(), msg) {
			// session is ending; the unmarked message is redelivered to the next owner
			return nil
		}

		session.MarkMessage(msg, "")
	}

	return nil
}

// process runs the handler until it succeeds or ctx is done. A failing message
// holds its partition, so later messages for the same key are never handled first.
func (h *saramaHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	ctx = extractTracing(ctx, msg)

	ctx, span := h.tracer.Start(ctx, "kafka_process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	delay := h.initialBackoff
	for attempt := 1; ; attempt++ {
		err := h.handler(ctx, msg)
		if err == nil {
			return true
		}

		span.RecordError(err)
		mylogger.Error(
			ctx,
			h.logger,
			"Failed to process message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		delay = min(delay*2, h.maxBackoff)
	}
}

func extractTracing(ctx context.Context, msg *sarama.ConsumerMessage) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
