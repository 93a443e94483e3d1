// Package nats consumes tour domain events from NATS and hands them to the
// notifier.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
	"github.com/bissquit/tourdesk/internal/pkg/metrics"
)

const (
	defaultHandleTimeout = 30 * time.Second

	resultOK          = "ok"
	resultDecodeError = "decode_error"
	resultUnsupported = "unsupported"
	resultError       = "error"
)

// EventHandler reacts to a decoded domain event.
type EventHandler interface {
	OnEvent(ctx context.Context, event domain.Event) (map[string][]string, error)
}

// Config holds subscriber settings.
type Config struct {
	URL     string
	Subject string
	// Queue is the NATS queue group; replicas sharing it split the events.
	Queue         string
	HandleTimeout time.Duration
}

// Subscriber receives domain events from a NATS subject.
type Subscriber struct {
	config  Config
	handler EventHandler
	conn    *natsgo.Conn
	sub     *natsgo.Subscription

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubscriber creates a new subscriber. Start connects it.
func NewSubscriber(config Config, handler EventHandler) *Subscriber {
	if config.HandleTimeout <= 0 {
		config.HandleTimeout = defaultHandleTimeout
	}
	return &Subscriber{
		config:  config,
		handler: handler,
	}
}

// Start connects to NATS and subscribes to the configured subject.
func (s *Subscriber) Start(ctx context.Context) error {
	conn, err := natsgo.Connect(s.config.URL,
		natsgo.Name("tourdesk-notifications"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	sub, err := conn.QueueSubscribe(s.config.Subject, s.config.Queue, func(msg *natsgo.Msg) {
		_ = s.HandleMessage(s.ctx, msg.Data)
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to %s: %w", s.config.Subject, err)
	}

	s.conn = conn
	s.sub = sub

	slog.Info("subscribed to domain events",
		"subject", s.config.Subject,
		"queue", s.config.Queue,
	)
	return nil
}

// Stop drains the subscription and closes the connection.
func (s *Subscriber) Stop() {
	if s.conn == nil {
		return
	}

	if err := s.conn.Drain(); err != nil {
		slog.Warn("failed to drain nats connection", "error", err)
		s.conn.Close()
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// IsConnected reports whether the NATS connection is up.
func (s *Subscriber) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// HandleMessage decodes one event payload and dispatches it.
func (s *Subscriber) HandleMessage(ctx context.Context, data []byte) error {
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		metrics.DomainEventsReceived.WithLabelValues("unknown", resultDecodeError).Inc()
		slog.Warn("failed to decode domain event", "error", err)
		return fmt.Errorf("decode event: %w", err)
	}

	if !notifications.SupportedEventType(event.Type) {
		metrics.DomainEventsReceived.WithLabelValues(string(event.Type), resultUnsupported).Inc()
		slog.Debug("ignoring unsupported domain event", "event_id", event.ID, "event_type", event.Type)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.HandleTimeout)
	defer cancel()

	if _, err := s.handler.OnEvent(ctx, event); err != nil {
		metrics.DomainEventsReceived.WithLabelValues(string(event.Type), resultError).Inc()
		if !errors.Is(err, notifications.ErrUnknownEventType) {
			slog.Error("failed to handle domain event",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err,
			)
		}
		return err
	}

	metrics.DomainEventsReceived.WithLabelValues(string(event.Type), resultOK).Inc()
	return nil
}
