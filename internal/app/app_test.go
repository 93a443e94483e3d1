package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/config"
	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/identity/jwt"
	"github.com/bissquit/tourdesk/internal/notifications"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := config.Default()
	cfg.JWT.SecretKey = testSecret
	cfg.Log.Level = "error"
	cfg.Notifications.Queue.RetryDelay = 10 * time.Millisecond
	cfg.Notifications.Queue.PollInterval = 10 * time.Millisecond
	require.NoError(t, cfg.Validate())

	a, err := New(&cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Shutdown(ctx))
	})
	return a
}

func issueToken(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	token, err := jwt.NewValidator(jwt.Config{SecretKey: testSecret, Issuer: "tourdesk"}).
		IssueToken(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApp_HealthAndVersion(t *testing.T) {
	a := newTestApp(t)

	rec := doRequest(t, a.Router(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, a.Router(), http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, a.Router(), http.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)
}

func TestApp_RequiresToken(t *testing.T) {
	a := newTestApp(t)

	rec := doRequest(t, a.Router(), http.MethodGet, "/api/v1/queue/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, a.Router(), http.MethodGet, "/api/v1/queue/stats", issueToken(t, "u1", domain.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApp_LoadsBuiltInTemplates(t *testing.T) {
	a := newTestApp(t)

	rec := doRequest(t, a.Router(), http.MethodGet, "/api/v1/templates", issueToken(t, "op-1", domain.RoleOperator), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Data []domain.Template `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))

	ids := make([]string, 0, len(listed.Data))
	for _, tmpl := range listed.Data {
		ids = append(ids, tmpl.ID)
	}
	expected := make([]string, 0, len(listed.Data))
	for _, tmpl := range notifications.DefaultTemplates() {
		expected = append(expected, tmpl.ID)
	}
	assert.ElementsMatch(t, expected, ids)
}

func TestApp_SendAndReadInbox(t *testing.T) {
	a := newTestApp(t)
	operator := issueToken(t, "op-1", domain.RoleOperator)
	traveler := issueToken(t, "u1", domain.RoleUser)

	rec := doRequest(t, a.Router(), http.MethodPost, "/api/v1/notifications", operator, map[string]any{
		"user_id":     "u1",
		"template_id": "registration_approved",
		"variables": map[string]any{
			"userName":  "Ada",
			"tourName":  "Alps Trek",
			"startDate": "June 1",
		},
		"channels": []string{"in_app"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var sent struct {
		Data struct {
			MessageIDs []string `json:"message_ids"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	require.Len(t, sent.Data.MessageIDs, 1)

	require.Eventually(t, func() bool {
		msg, err := a.Dispatcher().GetNotificationMessage(context.Background(), sent.Data.MessageIDs[0])
		return err == nil && msg.Status == domain.MessageStatusSent
	}, 2*time.Second, 10*time.Millisecond)

	rec = doRequest(t, a.Router(), http.MethodGet, "/api/v1/users/u1/inbox", traveler, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var inbox struct {
		Data []domain.InboxEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox.Data, 1)
	assert.Contains(t, inbox.Data[0].Body, "Alps Trek")

	// Another traveler cannot read u1's inbox.
	rec = doRequest(t, a.Router(), http.MethodGet, "/api/v1/users/u1/inbox", issueToken(t, "u2", domain.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApp_SendMissingVariables(t *testing.T) {
	a := newTestApp(t)

	rec := doRequest(t, a.Router(), http.MethodPost, "/api/v1/notifications", issueToken(t, "op-1", domain.RoleOperator), map[string]any{
		"user_id":     "u1",
		"template_id": "tour_cancelled",
		"variables":   map[string]any{"userName": "Ada"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "reason")
	assert.Contains(t, rec.Body.String(), "tourName")
	assert.Contains(t, rec.Body.String(), "missing_variables")
}
