// Package sms provides a rate-limited SMS delivery provider.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
)

// PhoneKey is the job metadata key holding the recipient phone number.
const PhoneKey = "phone"

// maxSegmentLength is the length of a single GSM-7 SMS segment.
const maxSegmentLength = 160

// Config holds SMS sender configuration.
type Config struct {
	// RatePerSecond is the sustained send rate allowed by the gateway.
	RatePerSecond float64
	Burst         int
}

// Sender delivers SMS notifications. The gateway is simulated; sends are
// still paced by the configured rate limit.
type Sender struct {
	config  Config
	limiter *rate.Limiter
}

// NewSender creates a new SMS sender.
func NewSender(config Config) *Sender {
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 10
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	return &Sender{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
	}
}

// Channel returns the channel this sender delivers on.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelSMS
}

// Deliver waits for a rate-limit slot and sends the text.
func (s *Sender) Deliver(ctx context.Context, job notifications.Job, subject, body string) (domain.DeliveryResult, error) {
	result := domain.DeliveryResult{MessageID: job.MessageID, Channel: domain.ChannelSMS}

	if err := s.limiter.Wait(ctx); err != nil {
		result.ErrorMessage = err.Error()
		return result, notifications.NewRetryableError(fmt.Errorf("wait for sms rate limit: %w", err))
	}

	text := composeText(subject, body)
	phone, _ := job.Metadata[PhoneKey].(string)

	slog.Debug("sms delivery simulated",
		"message_id", job.MessageID,
		"user_id", job.UserID,
		"has_phone", phone != "",
		"length", len([]rune(text)),
	)

	now := time.Now()
	result.Success = true
	result.SentAt = &now
	return result, nil
}

// composeText joins subject and body and truncates to one segment.
func composeText(subject, body string) string {
	text := body
	if subject != "" {
		text = subject + ": " + body
	}

	runes := []rune(text)
	if len(runes) <= maxSegmentLength {
		return text
	}
	return string(runes[:maxSegmentLength-3]) + "..."
}
