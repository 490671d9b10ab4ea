package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
}

type Option func(*OutboxProcessor)

func WithBatchSize(n int) Option {
	return func(p *OutboxProcessor) { p.batchSize = n }
}

func WithInterval(d time.Duration) Option {
	return func(p *OutboxProcessor) { p.interval = d }
}

type OutboxProcessor struct {
	pool          *pgxpool.Pool
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	batchSize     int
	interval      time.Duration
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	pool *pgxpool.Pool,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	opts ...Option,
) *OutboxProcessor {
	p := &OutboxProcessor{
		pool:          pool,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		batchSize:     50,
		interval:      500 * time.Millisecond,
		tracer:        otel.Tracer("outbox-worker"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start polls the outbox until ctx is done.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	mylogger.Info(ctx, p.logger, "Starting outbox processor", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return nil
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(ctx, p.logger, "Error processing outbox batch", zap.Error(err))
			}
		}
	}
}

func (p *OutboxProcessor) processBatch(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.processBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("outbox.batch", len(events)))

	for _, event := range events {
		if err := p.publish(ctx, tx, event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// publish returns an error only when the outbox row itself could not be updated.
func (p *OutboxProcessor) publish(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	var envelope domain.Envelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		mylogger.Error(
			ctx,
			p.logger,
			"Outbox event payload is not an envelope",
			zap.Int64("id", event.Id),
			zap.Error(err),
		)

		return p.repo.MarkEventFailed(ctx, tx, event.Id, err.Error())
	}

	envelope.EventID = event.Id

	if err := p.kafkaProducer.ProduceMessage(ctx, event.Topic, event.AggregateID, envelope); err != nil {
		mylogger.Warn(
			ctx,
			p.logger,
			"Outbox worker produce message failed",
			zap.Int64("id", event.Id),
			zap.Int64("attempts", event.Attempts+1),
			zap.Error(err),
		)

		return p.repo.MarkEventFailed(ctx, tx, event.Id, err.Error())
	}

	if err := p.repo.MarkEventPublished(ctx, tx, event.Id); err != nil {
		return err
	}

	mylogger.Debug(
		ctx,
		p.logger,
		"Outbox event published",
		zap.Int64("id", event.Id),
		zap.String("event_type", event.EventType),
	)

	return nil
}
