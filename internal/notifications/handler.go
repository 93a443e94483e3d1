package notifications

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrTemplateNotFound, Status: http.StatusNotFound, Message: "template not found"},
	{Error: ErrMissingVariables, Status: http.StatusBadRequest},
	{Error: ErrNoEnabledChannels, Status: http.StatusUnprocessableEntity, Message: "user has no enabled channels for this notification"},
	{Error: ErrMessageNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: ErrQueueStopped, Status: http.StatusServiceUnavailable, Message: "notification queue is stopped"},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	dispatcher  *Dispatcher
	preferences *PreferenceResolver
	templates   *TemplateRegistry
	registry    *Registry
	inbox       Inbox
	validator   *validator.Validate
}

// NewHandler creates a new notifications handler. inbox may be nil when
// in-app delivery is not configured.
func NewHandler(
	dispatcher *Dispatcher,
	preferences *PreferenceResolver,
	templates *TemplateRegistry,
	registry *Registry,
	inbox Inbox,
) *Handler {
	return &Handler{
		dispatcher:  dispatcher,
		preferences: preferences,
		templates:   templates,
		registry:    registry,
		inbox:       inbox,
		validator:   httputil.NewValidator(),
	}
}

// RegisterRoutes registers notification routes. Callers must apply
// httputil.AuthMiddleware first.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httputil.RequireRole(domain.RoleOperator))

		r.Post("/notifications", h.SendNotification)
		r.Post("/notifications/bulk", h.SendBulkNotification)
		r.Get("/notifications/{id}", h.GetNotification)

		r.Get("/queue/stats", h.GetQueueStats)
		r.Get("/queue/failed", h.GetFailedNotifications)
		r.With(httputil.RequireRole(domain.RoleAdmin)).Post("/queue/cleanup", h.Cleanup)

		r.Get("/channels", h.ListChannels)
		r.Get("/templates", h.ListTemplates)
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Use(httputil.RequireSelfOrRole("userID", domain.RoleOperator))

		r.Get("/notifications", h.GetUserNotifications)
		r.Get("/preferences", h.GetPreferences)
		r.Patch("/preferences", h.UpdatePreferences)
		r.Get("/inbox", h.GetInbox)
		r.Delete("/inbox", h.ClearInbox)
	})
}

// SendNotificationRequest represents request body for sending a notification.
type SendNotificationRequest struct {
	UserID      string         `json:"user_id" validate:"required"`
	TemplateID  string         `json:"template_id" validate:"required"`
	Variables   map[string]any `json:"variables"`
	Channels    []string       `json:"channels" validate:"omitempty,dive,oneof=email push sms in_app"`
	Priority    string         `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
	Metadata    map[string]any `json:"metadata"`
}

// SendBulkNotificationRequest represents request body for a bulk send.
type SendBulkNotificationRequest struct {
	UserIDs    []string       `json:"user_ids" validate:"required,min=1,max=1000,dive,required"`
	TemplateID string         `json:"template_id" validate:"required"`
	Variables  map[string]any `json:"variables"`
	Channels   []string       `json:"channels" validate:"omitempty,dive,oneof=email push sms in_app"`
	Priority   string         `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Metadata   map[string]any `json:"metadata"`
}

// SendNotification handles POST /notifications.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, err := h.dispatcher.SendNotification(r.Context(), SendOptions{
		UserID:      req.UserID,
		TemplateID:  req.TemplateID,
		Variables:   req.Variables,
		Channels:    toChannels(req.Channels),
		Priority:    priority,
		ScheduledAt: req.ScheduledAt,
		Metadata:    req.Metadata,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, map[string]any{"message_ids": ids})
}

// SendBulkNotification handles POST /notifications/bulk.
func (h *Handler) SendBulkNotification(w http.ResponseWriter, r *http.Request) {
	var req SendBulkNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// Fail fast on request-wide problems instead of logging one error per user.
	if _, ok := h.templates.GetTemplate(req.TemplateID); !ok {
		httputil.HandleError(r.Context(), w, ErrTemplateNotFound, errorMappings)
		return
	}

	results := h.dispatcher.SendBulkNotification(r.Context(), BulkSendOptions{
		UserIDs:    req.UserIDs,
		TemplateID: req.TemplateID,
		Variables:  req.Variables,
		Channels:   toChannels(req.Channels),
		Priority:   priority,
		Metadata:   req.Metadata,
	})

	httputil.Success(w, http.StatusAccepted, map[string]any{"results": results})
}

// GetNotification handles GET /notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	msg, err := h.dispatcher.GetNotificationMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, msg)
}

// GetUserNotifications handles GET /users/{userID}/notifications.
func (h *Handler) GetUserNotifications(w http.ResponseWriter, r *http.Request) {
	messages, err := h.dispatcher.GetUserNotifications(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, messages)
}

// GetPreferences handles GET /users/{userID}/preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	pref, err := h.preferences.GetUserPreferences(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, pref)
}

// UpdatePreferences handles PATCH /users/{userID}/preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var update domain.PreferenceUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	pref, err := h.preferences.UpdateUserPreferences(r.Context(), chi.URLParam(r, "userID"), update)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, pref)
}

// GetInbox handles GET /users/{userID}/inbox.
func (h *Handler) GetInbox(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		httputil.Error(w, http.StatusNotFound, "in-app inbox is not configured")
		return
	}

	entries, err := h.inbox.GetUserMessages(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

// ClearInbox handles DELETE /users/{userID}/inbox.
func (h *Handler) ClearInbox(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		httputil.Error(w, http.StatusNotFound, "in-app inbox is not configured")
		return
	}

	if err := h.inbox.ClearUserMessages(r.Context(), chi.URLParam(r, "userID")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// GetQueueStats handles GET /queue/stats.
func (h *Handler) GetQueueStats(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.dispatcher.GetQueueStats())
}

// FailedJobResponse describes a job that exhausted its retries.
type FailedJobResponse struct {
	MessageID  string          `json:"message_id"`
	UserID     string          `json:"user_id"`
	TemplateID string          `json:"template_id"`
	Channel    domain.Channel  `json:"channel"`
	Priority   domain.Priority `json:"priority"`
	RetryCount int             `json:"retry_count"`
}

// GetFailedNotifications handles GET /queue/failed.
func (h *Handler) GetFailedNotifications(w http.ResponseWriter, _ *http.Request) {
	jobs := h.dispatcher.GetFailedNotifications()

	result := make([]FailedJobResponse, 0, len(jobs))
	for _, job := range jobs {
		result = append(result, FailedJobResponse{
			MessageID:  job.MessageID,
			UserID:     job.UserID,
			TemplateID: job.TemplateID,
			Channel:    job.Channel,
			Priority:   job.Priority,
			RetryCount: job.RetryCount,
		})
	}

	httputil.Success(w, http.StatusOK, result)
}

// Cleanup handles POST /queue/cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	purged, err := h.dispatcher.Cleanup(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{"purged_messages": purged})
}

// ListChannels handles GET /channels.
func (h *Handler) ListChannels(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, map[string]any{"channels": h.registry.AvailableChannels()})
}

// ListTemplates handles GET /templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.templates.ListTemplates())
}

func toChannels(names []string) []domain.Channel {
	if len(names) == 0 {
		return nil
	}
	channels := make([]domain.Channel, len(names))
	for i, name := range names {
		channels[i] = domain.Channel(name)
	}
	return channels
}
