// Package push provides push notification delivery through an HTTP push gateway.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
)

const defaultTimeout = 10 * time.Second

// DeviceTokenKey is the job metadata key holding the target device token.
const DeviceTokenKey = "device_token"

// Config holds push sender configuration. An empty GatewayURL makes the
// sender simulate deliveries.
type Config struct {
	GatewayURL string
	APIKey     string
	Timeout    time.Duration
}

// Sender delivers push notifications to a push gateway webhook.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new push sender.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Channel returns the channel this sender delivers on.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelPush
}

type gatewayPayload struct {
	MessageID   string         `json:"message_id"`
	UserID      string         `json:"user_id"`
	DeviceToken string         `json:"device_token,omitempty"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Priority    string         `json:"priority"`
	Data        map[string]any `json:"data,omitempty"`
}

// Deliver posts the notification to the gateway.
func (s *Sender) Deliver(ctx context.Context, job notifications.Job, subject, body string) (domain.DeliveryResult, error) {
	result := domain.DeliveryResult{MessageID: job.MessageID, Channel: domain.ChannelPush}

	if s.config.GatewayURL == "" {
		slog.Debug("push delivery simulated", "message_id", job.MessageID, "user_id", job.UserID)
		return succeeded(result), nil
	}

	token, _ := job.Metadata[DeviceTokenKey].(string)
	payload := gatewayPayload{
		MessageID:   job.MessageID,
		UserID:      job.UserID,
		DeviceToken: token,
		Title:       subject,
		Body:        body,
		Priority:    job.Priority.String(),
		Data:        job.Metadata,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result, notifications.NewNonRetryableError(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(raw))
	if err != nil {
		result.ErrorMessage = err.Error()
		return result, notifications.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		err = &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
		result.ErrorMessage = err.Error()
		return result, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := s.handleResponse(resp); err != nil {
		result.ErrorMessage = err.Error()
		return result, err
	}

	slog.Debug("push notification sent", "message_id", job.MessageID, "user_id", job.UserID)
	return succeeded(result), nil
}

func (s *Sender) handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{Code: resp.StatusCode, Message: fmt.Sprintf("bad request: %s", string(body))}

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &PermanentError{Code: resp.StatusCode, Message: "gateway rejected credentials"}

	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return &PermanentError{Code: resp.StatusCode, Message: "device not registered"}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{Code: resp.StatusCode, Message: "rate limited"}

	case resp.StatusCode >= 500:
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("server error: %s", string(body))}

	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

func succeeded(result domain.DeliveryResult) domain.DeliveryResult {
	now := time.Now()
	result.Success = true
	result.SentAt = &now
	return result
}

// PermanentError indicates a gateway error that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("push gateway error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("push gateway error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary gateway error.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("push gateway error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("push gateway error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
