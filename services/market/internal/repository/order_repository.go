package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, db DBTX, id int64) (*domain.Order, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, id int64, paymentID, signature string, paidAt time.Time) error
	MarkPaymentFailed(ctx context.Context, tx pgx.Tx, id int64) error
	SetSettlementStatus(ctx context.Context, tx pgx.Tx, id int64, status domain.SettlementStatus) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, from, to domain.OrderStatus) error
	ListByBuyer(ctx context.Context, buyerID int64) ([]*domain.Order, error)
	ListBySeller(ctx context.Context, sellerID int64) ([]*domain.Order, error)
	SellerStats(ctx context.Context, sellerID int64) (*domain.SellerStats, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("market/order_repository"),
	}
}

const orderColumns = `
	o.id, o.buyer_id, o.buyer_email, o.shipping_address, o.total_amount, o.currency,
	o.payment_status, o.order_status, o.settlement_status,
	o.gateway_order_id, o.gateway_payment_id, o.gateway_signature, o.paid_at,
	o.created_at, o.updated_at
`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	if err := row.Scan(
		&o.ID,
		&o.BuyerID,
		&o.BuyerEmail,
		&o.ShippingAddress,
		&o.TotalAmount,
		&o.Currency,
		&o.Payment.Status,
		&o.Status,
		&o.SettlementStatus,
		&o.Payment.GatewayOrderID,
		&o.Payment.PaymentID,
		&o.Payment.Signature,
		&o.Payment.PaidAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	o.Items = []domain.OrderItem{}
	return &o, nil
}

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("buyer_id", order.BuyerID),
		attribute.Int("items_count", len(order.Items)),
		attribute.String("gateway_order_id", order.Payment.GatewayOrderID),
	)

	queryOrder := `
		INSERT INTO orders (
			buyer_id, buyer_email, shipping_address, total_amount, currency,
			payment_status, order_status, settlement_status, gateway_order_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.BuyerID,
		order.BuyerEmail,
		order.ShippingAddress,
		order.TotalAmount,
		order.Currency,
		string(order.Payment.Status),
		string(order.Status),
		string(order.SettlementStatus),
		order.Payment.GatewayOrderID,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert order", zap.Error(err))

		return fmt.Errorf("error inserting order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, book_id, seller_id, title, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			order.ID,
			item.BookID,
			item.SellerID,
			item.Title,
			item.Price,
			item.Quantity,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to insert order item", zap.Int64("book_id", item.BookID), zap.Error(err))

			return fmt.Errorf("error inserting order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, db DBTX, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	order, err := scanOrder(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to get order", zap.Int64("order_id", id), zap.Error(err))

		return nil, fmt.Errorf("error getting order %d: %w", id, err)
	}

	if err := r.attachItems(ctx, db, []*domain.Order{order}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

// MarkPaid moves a pending payment to completed and the order to processing.
// ErrStatusNotMatched means another call already resolved the payment.
func (r *orderRepo) MarkPaid(
	ctx context.Context,
	tx pgx.Tx,
	id int64,
	paymentID, signature string,
	paidAt time.Time,
) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkPaid")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	query := `
		UPDATE orders
		SET payment_status = 'completed',
			order_status = 'processing',
			gateway_payment_id = $2,
			gateway_signature = $3,
			paid_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
	`

	commandTag, err := tx.Exec(ctx, query, id, paymentID, signature, paidAt)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to mark order paid", zap.Int64("order_id", id), zap.Error(err))

		return fmt.Errorf("error marking order paid: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "Order payment already resolved", zap.Int64("order_id", id))
		return ErrStatusNotMatched
	}

	return nil
}

func (r *orderRepo) MarkPaymentFailed(ctx context.Context, tx pgx.Tx, id int64) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkPaymentFailed")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	query := `
		UPDATE orders
		SET payment_status = 'failed', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
	`

	commandTag, err := tx.Exec(ctx, query, id)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to mark payment failed", zap.Int64("order_id", id), zap.Error(err))

		return fmt.Errorf("error marking payment failed: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrStatusNotMatched
	}

	return nil
}

func (r *orderRepo) SetSettlementStatus(ctx context.Context, tx pgx.Tx, id int64, status domain.SettlementStatus) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.SetSettlementStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
		attribute.String("settlement_status", string(status)),
	)

	query := `
		UPDATE orders
		SET settlement_status = $2, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, id, string(status))
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to set settlement status", zap.Int64("order_id", id), zap.Error(err))

		return fmt.Errorf("error setting settlement status: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// UpdateStatus is a compare-and-set on order_status for paid orders.
func (r *orderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, from, to domain.OrderStatus) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)

	query := `
		UPDATE orders
		SET order_status = $3, updated_at = NOW()
		WHERE id = $1 AND order_status = $2 AND payment_status = 'completed'
	`

	commandTag, err := tx.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to update order status", zap.Int64("order_id", id), zap.Error(err))

		return fmt.Errorf("error updating order status: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(
			ctx,
			r.logger,
			"Order status changed concurrently",
			zap.Int64("order_id", id),
			zap.String("expected", string(from)),
		)

		return ErrStatusNotMatched
	}

	return nil
}

func (r *orderRepo) ListByBuyer(ctx context.Context, buyerID int64) ([]*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByBuyer")
	defer span.End()

	span.SetAttributes(attribute.Int64("buyer_id", buyerID))

	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.buyer_id = $1
		ORDER BY o.created_at DESC, o.id DESC
	`

	return r.list(ctx, span, query, buyerID)
}

func (r *orderRepo) ListBySeller(ctx context.Context, sellerID int64) ([]*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListBySeller")
	defer span.End()

	span.SetAttributes(attribute.Int64("seller_id", sellerID))

	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE EXISTS (
			SELECT 1 FROM order_items oi
			WHERE oi.order_id = o.id AND oi.seller_id = $1
		)
		ORDER BY o.created_at DESC, o.id DESC
	`

	return r.list(ctx, span, query, sellerID)
}

func (r *orderRepo) list(ctx context.Context, span trace.Span, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query orders", zap.Error(err))

		return nil, fmt.Errorf("error listing orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to scan order", zap.Error(err))

			return nil, err
		}

		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(ctx, r.logger, "Rows error", zap.Error(err))
		return nil, err
	}
	rows.Close()

	if err := r.attachItems(ctx, r.pool, orders); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return orders, nil
}

func (r *orderRepo) attachItems(ctx context.Context, db DBTX, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	query := `
		SELECT id, order_id, book_id, seller_id, title, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`

	rows, err := db.Query(ctx, query, ids)
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to query order_items", zap.Error(err))
		return fmt.Errorf("error loading order items: %w", err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.OrderItem])
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to collect order_items", zap.Error(err))
		return err
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	return nil
}

// SellerStats aggregates over paid orders only. Revenue counts just the seller's own lines.
func (r *orderRepo) SellerStats(ctx context.Context, sellerID int64) (*domain.SellerStats, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.SellerStats")
	defer span.End()

	span.SetAttributes(attribute.Int64("seller_id", sellerID))

	query := `
		SELECT
			(SELECT COUNT(*) FROM books WHERE seller_id = $1),
			COUNT(DISTINCT o.id),
			COALESCE(SUM(oi.price * oi.quantity), 0),
			COUNT(DISTINCT o.id) FILTER (WHERE o.order_status NOT IN ('delivered', 'cancelled'))
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.seller_id = $1 AND o.payment_status = 'completed'
	`

	var stats domain.SellerStats
	if err := r.pool.QueryRow(ctx, query, sellerID).Scan(
		&stats.TotalBooks,
		&stats.TotalOrders,
		&stats.TotalRevenue,
		&stats.PendingOrders,
	); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to compute seller stats", zap.Int64("seller_id", sellerID), zap.Error(err))

		return nil, fmt.Errorf("error computing seller stats: %w", err)
	}

	return &stats, nil
}
