package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	actionAttempts = 3
	retryDelay     = 500 * time.Millisecond
)

// ProcessWithDeduplication runs action at most once per (consumer, eventID).
// The processed_events row and the action outcome commit or roll back together.
func ProcessWithDeduplication(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	consumer string,
	eventID int64,
	action func(ctx context.Context) error,
) error {
	span := trace.SpanFromContext(ctx)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dedup transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(shutdownCtx, logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	query := `
		INSERT INTO processed_events (consumer, event_id)
		VALUES ($1, $2)
	`

	if _, err = tx.Exec(ctx, query, consumer, eventID); err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			mylogger.Info(
				ctx,
				logger,
				"Event already processed, skipping",
				zap.String("consumer", consumer),
				zap.Int64("event_id", eventID),
			)

			return nil
		}

		span.RecordError(err)
		return fmt.Errorf("insert processed event: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = action(ctx)
		if err == nil {
			break
		}

		if attempt == actionAttempts {
			span.RecordError(err)
			mylogger.Error(ctx, logger, "Action failed after retries", zap.Int64("event_id", eventID), zap.Error(err))

			return fmt.Errorf("action failed after %d attempts: %w", actionAttempts, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, logger, "Failed to commit transaction", zap.Error(err))

		return fmt.Errorf("commit processed event: %w", err)
	}

	return nil
}
