// Package email provides email notification delivery via SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
)

// RecipientKey is the job metadata key holding the recipient address.
const RecipientKey = "email"

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	// TLSPolicy is one of "mandatory", "opportunistic" or "none".
	TLSPolicy string
	Timeout   time.Duration
}

// Sender delivers email notifications via SMTP.
type Sender struct {
	config Config
}

// NewSender creates a new email sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.TLSPolicy == "" {
		config.TLSPolicy = "opportunistic"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"tls_policy", config.TLSPolicy,
	)

	return &Sender{config: config}, nil
}

// Channel returns the channel this sender delivers on.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Deliver sends the rendered notification to the address in the job metadata.
// Delivery is simulated when the sender is disabled or no address is known.
func (s *Sender) Deliver(ctx context.Context, job notifications.Job, subject, body string) (domain.DeliveryResult, error) {
	result := domain.DeliveryResult{MessageID: job.MessageID, Channel: domain.ChannelEmail}

	to, _ := job.Metadata[RecipientKey].(string)
	if !s.config.Enabled || to == "" {
		slog.Debug("email delivery simulated",
			"message_id", job.MessageID,
			"user_id", job.UserID,
			"enabled", s.config.Enabled,
		)
		return succeeded(result), nil
	}

	msg, err := s.buildMessage(to, subject, body)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result, notifications.NewNonRetryableError(err)
	}

	client, err := s.newClient()
	if err != nil {
		result.ErrorMessage = err.Error()
		return result, notifications.NewNonRetryableError(err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		result.ErrorMessage = err.Error()
		if IsRetryable(err) {
			return result, notifications.NewRetryableError(fmt.Errorf("send email: %w", err))
		}
		return result, notifications.NewNonRetryableError(fmt.Errorf("send email: %w", err))
	}

	slog.Debug("email sent", "message_id", job.MessageID, "user_id", job.UserID)
	return succeeded(result), nil
}

func succeeded(result domain.DeliveryResult) domain.DeliveryResult {
	now := time.Now()
	result.Success = true
	result.SentAt = &now
	return result
}

// buildMessage constructs a plain-text email.
func (s *Sender) buildMessage(to, subject, body string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.config.FromAddress); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}

func (s *Sender) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.config.SMTPPort),
		mail.WithTLSPolicy(tlsPolicy(s.config.TLSPolicy)),
		mail.WithTimeout(s.config.Timeout),
	}
	if s.config.SMTPUser != "" && s.config.SMTPPassword != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.SMTPUser),
			mail.WithPassword(s.config.SMTPPassword),
		)
	}

	client, err := mail.NewClient(s.config.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return client, nil
}

func tlsPolicy(policy string) mail.TLSPolicy {
	switch policy {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

// IsRetryable determines if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && sendErr.IsTemp() {
		return true
	}

	// Network timeout errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection refused is retryable
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := err.Error()

	// SMTP 4xx codes are temporary failures
	if strings.Contains(errStr, "421") ||
		strings.Contains(errStr, "450") ||
		strings.Contains(errStr, "451") ||
		strings.Contains(errStr, "452") {
		return true
	}

	// 552 - Mailbox full is sometimes retryable
	return strings.Contains(errStr, "552")
}
