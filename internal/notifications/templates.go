package notifications

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bissquit/tourdesk/internal/domain"
)

// Template identifiers of the built-in set.
const (
	TemplateTourUpdate           = "tour_update"
	TemplateTourCancelled        = "tour_cancelled"
	TemplateScheduleChange       = "schedule_change"
	TemplateActivityAdded        = "activity_added"
	TemplateActivityUpdated      = "activity_updated"
	TemplateActivityCancelled    = "activity_cancelled"
	TemplateCapacityChange       = "capacity_change"
	TemplateRegistrationApproved = "registration_approved"
	TemplateRegistrationRejected = "registration_rejected"
	TemplateSystemAnnouncement   = "system_announcement"
)

// ValidationResult reports which declared variables a binding set lacks.
type ValidationResult struct {
	Valid            bool     `json:"valid"`
	MissingVariables []string `json:"missing_variables"`
}

// RenderedTemplate is a template with all declared placeholders substituted.
type RenderedTemplate struct {
	Subject string
	Body    string
}

// TemplateRegistry stores templates and renders them.
// Templates are immutable once registered.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]domain.Template
}

// NewTemplateRegistry creates a registry holding the given templates.
func NewTemplateRegistry(templates ...domain.Template) *TemplateRegistry {
	r := &TemplateRegistry{
		templates: make(map[string]domain.Template, len(templates)),
	}
	for _, t := range templates {
		r.templates[t.ID] = cloneTemplate(t)
	}
	return r
}

// Register adds a template. Registering an existing id is an error.
// A template without a name is labelled from its id.
func (r *TemplateRegistry) Register(t domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("template %s already registered", t.ID)
	}
	r.templates[t.ID] = cloneTemplate(t)
	return nil
}

// GetTemplate returns a copy of the template with the given id.
func (r *TemplateRegistry) GetTemplate(id string) (*domain.Template, bool) {
	r.mu.RLock()
	t, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c := cloneTemplate(t)
	return &c, true
}

// ListTemplates returns all templates ordered by id.
func (r *TemplateRegistry) ListTemplates() []domain.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Template, 0, len(r.templates))
	for _, t := range r.templates {
		result = append(result, cloneTemplate(t))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ValidateTemplateVariables returns the declared variables missing from vars,
// in declaration order.
func (r *TemplateRegistry) ValidateTemplateVariables(id string, vars map[string]any) (ValidationResult, error) {
	t, ok := r.GetTemplate(id)
	if !ok {
		return ValidationResult{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	missing := make([]string, 0)
	for _, name := range t.Variables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}

	return ValidationResult{
		Valid:            len(missing) == 0,
		MissingVariables: missing,
	}, nil
}

// RenderTemplate substitutes every declared variable's placeholder in the
// subject and body. It does not validate; call ValidateTemplateVariables first.
func (r *TemplateRegistry) RenderTemplate(id string, vars map[string]any) (*RenderedTemplate, bool) {
	t, ok := r.GetTemplate(id)
	if !ok {
		return nil, false
	}

	pairs := make([]string, 0, len(t.Variables)*2)
	for _, name := range t.Variables {
		value, ok := vars[name]
		if !ok {
			continue
		}
		pairs = append(pairs, placeholder(name), formatValue(value))
	}
	replacer := strings.NewReplacer(pairs...)

	return &RenderedTemplate{
		Subject: replacer.Replace(t.Subject),
		Body:    replacer.Replace(t.Body),
	}, true
}

func placeholder(name string) string {
	return "{{" + name + "}}"
}

// formatValue renders a bound value as plain text. Numbers keep every digit.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case time.Time:
		return formatTime(&val)
	case *time.Time:
		return formatTime(val)
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

var titleCaser = cases.Title(language.English)

// templateLabel turns an id such as "tour_update" into "Tour Update".
func templateLabel(id string) string {
	return titleCaser.String(strings.ReplaceAll(id, "_", " "))
}

func cloneTemplate(t domain.Template) domain.Template {
	if t.Name == "" {
		t.Name = templateLabel(t.ID)
	}
	t.Variables = append([]string(nil), t.Variables...)
	return t
}

// DefaultTemplates returns the built-in tour notification templates.
func DefaultTemplates() []domain.Template {
	return []domain.Template{
		{
			ID:        TemplateTourUpdate,
			Name:      "Tour update",
			Subject:   "Update for {{tourName}}",
			Body:      "Hello {{userName}},\n\nThere is an update for your tour {{tourName}}:\n\n{{message}}",
			Category:  domain.CategoryTourUpdate,
			Variables: []string{"userName", "tourName", "message"},
		},
		{
			ID:        TemplateTourCancelled,
			Name:      "Tour cancelled",
			Subject:   "{{tourName}} has been cancelled",
			Body:      "Hello {{userName}},\n\nWe are sorry to inform you that {{tourName}} has been cancelled.\n\nReason: {{reason}}",
			Category:  domain.CategoryTourCancelled,
			Variables: []string{"userName", "tourName", "reason"},
		},
		{
			ID:        TemplateScheduleChange,
			Name:      "Schedule change",
			Subject:   "Schedule change for {{tourName}}",
			Body:      "Hello {{userName}},\n\nThe schedule of {{tourName}} has changed.\n\n{{changeDetails}}",
			Category:  domain.CategoryScheduleChange,
			Variables: []string{"userName", "tourName", "changeDetails"},
		},
		{
			ID:        TemplateActivityAdded,
			Name:      "Activity added",
			Subject:   "New activity in {{tourName}}: {{activityName}}",
			Body:      "Hello {{userName}},\n\n{{activityName}} has been added to {{tourName}} on {{activityTime}}.",
			Category:  domain.CategoryActivityUpdate,
			Variables: []string{"userName", "tourName", "activityName", "activityTime"},
		},
		{
			ID:        TemplateActivityUpdated,
			Name:      "Activity updated",
			Subject:   "{{activityName}} updated in {{tourName}}",
			Body:      "Hello {{userName}},\n\n{{activityName}} in {{tourName}} has been updated.\n\n{{changeDetails}}",
			Category:  domain.CategoryActivityUpdate,
			Variables: []string{"userName", "tourName", "activityName", "changeDetails"},
		},
		{
			ID:        TemplateActivityCancelled,
			Name:      "Activity cancelled",
			Subject:   "{{activityName}} cancelled in {{tourName}}",
			Body:      "Hello {{userName}},\n\n{{activityName}} in {{tourName}} has been cancelled.",
			Category:  domain.CategoryActivityUpdate,
			Variables: []string{"userName", "tourName", "activityName"},
		},
		{
			ID:        TemplateCapacityChange,
			Name:      "Capacity change",
			Subject:   "Capacity changed for {{tourName}}",
			Body:      "Hello {{userName}},\n\n{{tourName}} now has {{availableSpots}} available spots.",
			Category:  domain.CategoryCapacityChange,
			Variables: []string{"userName", "tourName", "availableSpots"},
		},
		{
			ID:        TemplateRegistrationApproved,
			Name:      "Registration approved",
			Subject:   "Your registration for {{tourName}} is approved",
			Body:      "Hello {{userName}},\n\nYour registration for {{tourName}} has been approved. The tour starts on {{startDate}}.",
			Category:  domain.CategoryRegistrationApproved,
			Variables: []string{"userName", "tourName", "startDate"},
		},
		{
			ID:        TemplateRegistrationRejected,
			Name:      "Registration rejected",
			Subject:   "Your registration for {{tourName}} was not approved",
			Body:      "Hello {{userName}},\n\nUnfortunately your registration for {{tourName}} was not approved.\n\nReason: {{reason}}",
			Category:  domain.CategoryRegistrationRejected,
			Variables: []string{"userName", "tourName", "reason"},
		},
		{
			ID:        TemplateSystemAnnouncement,
			Name:      "System announcement",
			Subject:   "{{title}}",
			Body:      "{{message}}",
			Category:  domain.CategorySystem,
			Variables: []string{"title", "message"},
		},
	}
}
