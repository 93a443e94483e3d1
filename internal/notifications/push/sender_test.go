package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
)

func testJob() notifications.Job {
	return notifications.Job{
		MessageID: "m1",
		UserID:    "u1",
		Channel:   domain.ChannelPush,
		Priority:  domain.PriorityHigh,
		Metadata:  map[string]any{DeviceTokenKey: "device-abc"},
	}
}

func TestNewSender_Defaults(t *testing.T) {
	sender := NewSender(Config{})

	assert.Equal(t, defaultTimeout, sender.config.Timeout)
	assert.NotNil(t, sender.httpClient)
	assert.Equal(t, domain.ChannelPush, sender.Channel())
}

func TestSender_Deliver_Simulated(t *testing.T) {
	sender := NewSender(Config{})

	result, err := sender.Deliver(context.Background(), testJob(), "Title", "Body")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotNil(t, result.SentAt)
}

func TestSender_Deliver_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var payload gatewayPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "m1", payload.MessageID)
		assert.Equal(t, "u1", payload.UserID)
		assert.Equal(t, "device-abc", payload.DeviceToken)
		assert.Equal(t, "Tour update", payload.Title)
		assert.Equal(t, "Meet at 8am", payload.Body)
		assert.Equal(t, "high", payload.Priority)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewSender(Config{GatewayURL: server.URL, APIKey: "secret"})

	result, err := sender.Deliver(context.Background(), testJob(), "Tour update", "Meet at 8am")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "m1", result.MessageID)
}

func TestSender_Deliver_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"forbidden", http.StatusForbidden, false},
		{"not found", http.StatusNotFound, false},
		{"gone", http.StatusGone, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			sender := NewSender(Config{GatewayURL: server.URL})

			result, err := sender.Deliver(context.Background(), testJob(), "t", "b")
			require.Error(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, err.Error(), result.ErrorMessage)

			retryable, ok := err.(interface{ IsRetryable() bool })
			require.True(t, ok)
			assert.Equal(t, tt.wantRetryable, retryable.IsRetryable())
		})
	}
}

func TestSender_Deliver_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(Config{GatewayURL: server.URL, Timeout: 50 * time.Millisecond})

	_, err := sender.Deliver(context.Background(), testJob(), "t", "b")
	require.Error(t, err)

	var re *RetryableError
	assert.ErrorAs(t, err, &re)
}

func TestErrors(t *testing.T) {
	assert.Equal(t, "push gateway error 404: device not registered", (&PermanentError{Code: 404, Message: "device not registered"}).Error())
	assert.Equal(t, "push gateway error: timeout", (&RetryableError{Message: "timeout"}).Error())
}
