package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sakashimaa/book-market/pkg/config"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/services/notification/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, msg domain.Email) error
}

type smtpSender struct {
	from     string
	password string
	host     string
	port     string
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSMTPSender(cfg config.SMTP, logger *zap.Logger) Sender {
	return &smtpSender{
		from:     cfg.User,
		password: cfg.Password,
		host:     cfg.Host,
		port:     cfg.Port,
		logger:   logger,
		tracer:   otel.Tracer("notification/infrastructure/email"),
	}
}

func buildMessage(from string, msg domain.Email) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.HTML)

	return []byte(b.String())
}

func (s *smtpSender) Send(ctx context.Context, msg domain.Email) error {
	ctx, span := s.tracer.Start(ctx, "smtp.Send")
	defer span.End()

	span.SetAttributes(
		attribute.String("to.email", msg.To),
		attribute.String("subject", msg.Subject),
	)

	if msg.To == "" {
		return domain.ErrNoRecipient
	}

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.from, s.password, s.host)

	mylogger.Info(ctx, s.logger, "Sending email", zap.String("to", msg.To), zap.String("subject", msg.Subject))

	if err := smtp.SendMail(addr, auth, s.from, []string{msg.To}, buildMessage(s.from, msg)); err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Error sending email",
			zap.String("to", msg.To),
			zap.Error(err),
		)

		return fmt.Errorf("failed to send mail: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Email sent successfully", zap.String("to", msg.To))
	return nil
}
