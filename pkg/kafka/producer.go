package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Producer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
	Close() error
}

type producer struct {
	syncProducer sarama.SyncProducer
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewProducer(brokers []string, logger *zap.Logger) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V3_0_0_0

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return &producer{
		syncProducer: p,
		logger:       logger,
		tracer:       otel.Tracer("pkg/kafka/producer"),
	}, nil
}

// ProduceMessage sends message as JSON. The trace context travels in the record headers.
func (p *producer) ProduceMessage(ctx context.Context, topic, key string, message any) error {
	ctx, span := p.tracer.Start(ctx, "kafka_produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.kafka.message_key", key),
		),
	)
	defer span.End()

	jsonMsg, err := json.Marshal(message)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal message: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(jsonMsg),
		Headers: headers,
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.syncProducer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error sending message: %w", err)
	}

	span.SetAttributes(
		attribute.Int("messaging.kafka.partition", int(partition)),
		attribute.Int64("messaging.kafka.offset", offset),
	)

	mylogger.Debug(
		ctx,
		p.logger,
		"Message sent",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

func (p *producer) Close() error {
	return p.syncProducer.Close()
}
