package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/notify-api/pkg/circuitbreaker"
	"github.com/jwalitptl/notify-api/pkg/logger"
)

// TransportError wraps a failure of the underlying send mechanism.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Message is one outbound email, fully rendered.
type Message struct {
	From     string
	FromName string
	To       string
	CC       []string
	BCC      []string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport hands a rendered message to the outside world. The returned
// correlation ID is the token the provider will echo back in webhook events.
type Transport interface {
	Send(ctx context.Context, msg *Message) (correlationID string, err error)
}

type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	SenderAddress      string
	SenderName         string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

type smtpTransport struct {
	dialer  *gomail.Dialer
	cfg     SMTPConfig
	breaker *circuitbreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewSMTPTransport creates a gomail-backed transport. Sends are bounded by
// cfg.Timeout and guarded by a circuit breaker so a dead SMTP host fails
// fast instead of piling up dials.
func NewSMTPTransport(cfg SMTPConfig, logger *logger.Logger) Transport {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		logger.Warn("InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &smtpTransport{
		dialer: d,
		cfg:    cfg,
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		logger: logger,
	}
}

func (t *smtpTransport) Send(ctx context.Context, msg *Message) (string, error) {
	m := gomail.NewMessage()

	from := msg.From
	if from == "" {
		from = t.cfg.SenderAddress
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = t.cfg.SenderName
	}
	m.SetAddressHeader("From", from, fromName)
	m.SetHeader("To", msg.To)
	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}
	if len(msg.BCC) > 0 {
		m.SetHeader("Bcc", msg.BCC...)
	}
	m.SetHeader("Subject", msg.Subject)

	// SMTP has no provider message ID to hand back, so the transport mints
	// the correlation token itself and stamps it on the message for the
	// tracking pipeline to echo.
	correlationID := uuid.New().String()
	m.SetHeader("X-Entity-Ref-ID", correlationID)

	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
		if msg.HTMLBody != "" {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.breaker.Execute(func() error {
			return t.dialer.DialAndSend(m)
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", &TransportError{Cause: err}
		}
	case <-ctx.Done():
		return "", &TransportError{Cause: fmt.Errorf("send timed out after %s: %w", t.cfg.Timeout, ctx.Err())}
	}

	t.logger.Debug("email handed to SMTP", "to", msg.To, "correlation_id", correlationID)
	return correlationID, nil
}
