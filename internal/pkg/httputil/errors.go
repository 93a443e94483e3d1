package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/tourdesk/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// detailer is implemented by errors that carry structured response details.
type detailer interface {
	Details() any
}

// HandleError maps err to a response using the first matching mapping.
// Unmapped errors are logged and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}

		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}

		var details any
		var d detailer
		if errors.As(err, &d) {
			details = d.Details()
		}

		ctxlog.FromContext(ctx).Debug("request failed", "status", m.Status, "error", err)
		ErrorWithDetails(w, m.Status, msg, details)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
