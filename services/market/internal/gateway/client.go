package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/pkg/utils"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Intent is a payment order registered at the gateway.
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

type Client interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (*Intent, error)
	KeyID() string
}

type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

type client struct {
	http   *resty.Client
	cb     *gobreaker.CircuitBreaker
	keyID  string
	logger *zap.Logger
	tracer trace.Tracer
}

func NewClient(cfg Config, logger *zap.Logger) Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(0)

	return &client{
		http: httpClient,
		// Rejections are the caller's problem, only outages count towards tripping.
		cb: utils.NewBreaker("PaymentGateway", logger, func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrGatewayUnavailable)
		}),
		keyID:  cfg.KeyID,
		logger: logger,
		tracer: otel.Tracer("market/gateway_client"),
	}
}

func (c *client) KeyID() string {
	return c.keyID
}

func (c *client) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (*Intent, error) {
	ctx, span := c.tracer.Start(ctx, "GatewayClient.CreateIntent")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("amount", amountMinor),
		attribute.String("currency", currency),
		attribute.String("receipt", receipt),
	)

	intent, err := utils.ExecuteWithBreaker(c.cb, func() (*Intent, error) {
		return c.createIntent(ctx, amountMinor, currency, receipt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			mylogger.Warn(ctx, c.logger, "Payment gateway circuit open")
			err = fmt.Errorf("%w: circuit open", domain.ErrGatewayUnavailable)
		}

		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("gateway_order_id", intent.ID))
	return intent, nil
}

func (c *client) createIntent(ctx context.Context, amountMinor int64, currency, receipt string) (*Intent, error) {
	var (
		intent  Intent
		failure errorResponse
	)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createIntentRequest{
			Amount:   amountMinor,
			Currency: currency,
			Receipt:  receipt,
		}).
		SetResult(&intent).
		SetError(&failure).
		Post("/v1/orders")
	if err != nil {
		mylogger.Warn(ctx, c.logger, "Payment gateway request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	status := resp.StatusCode()
	switch {
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		mylogger.Warn(ctx, c.logger, "Payment gateway unavailable", zap.Int("status", status))
		return nil, fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, status)
	case resp.IsError():
		mylogger.Warn(
			ctx,
			c.logger,
			"Payment gateway rejected intent",
			zap.Int("status", status),
			zap.String("code", failure.Error.Code),
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayRejected, failure.Error.Description)
	}

	if intent.ID == "" {
		return nil, fmt.Errorf("%w: empty intent id", domain.ErrGatewayRejected)
	}

	return &intent, nil
}
