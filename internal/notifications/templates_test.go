package notifications

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
)

var placeholderRe = regexp.MustCompile(`\{\{\w+\}\}`)

func bindAll(t domain.Template) map[string]any {
	vars := make(map[string]any, len(t.Variables))
	for _, name := range t.Variables {
		vars[name] = "value-of-" + name
	}
	return vars
}

func TestDefaultTemplates_RenderWithoutPlaceholders(t *testing.T) {
	registry := NewTemplateRegistry(DefaultTemplates()...)

	templates := registry.ListTemplates()
	require.Len(t, templates, 10)

	for _, tmpl := range templates {
		t.Run(tmpl.ID, func(t *testing.T) {
			vars := bindAll(tmpl)

			rendered, ok := registry.RenderTemplate(tmpl.ID, vars)
			require.True(t, ok)

			assert.Empty(t, placeholderRe.FindAllString(rendered.Subject, -1))
			assert.Empty(t, placeholderRe.FindAllString(rendered.Body, -1))

			again, ok := registry.RenderTemplate(tmpl.ID, vars)
			require.True(t, ok)
			assert.Equal(t, rendered, again)
		})
	}
}

func TestTemplateRegistry_RenderTemplate(t *testing.T) {
	registry := NewTemplateRegistry(DefaultTemplates()...)

	rendered, ok := registry.RenderTemplate(TemplateTourUpdate, map[string]any{
		"userName": "Alice",
		"tourName": "Alpine Trek",
		"message":  "Bring {{boots}}",
	})
	require.True(t, ok)

	assert.Equal(t, "Update for Alpine Trek", rendered.Subject)
	assert.Equal(t, "Hello Alice,\n\nThere is an update for your tour Alpine Trek:\n\nBring {{boots}}", rendered.Body)
}

func TestTemplateRegistry_RenderTemplate_NotFound(t *testing.T) {
	registry := NewTemplateRegistry()

	rendered, ok := registry.RenderTemplate("missing", nil)
	assert.False(t, ok)
	assert.Nil(t, rendered)
}

func TestTemplateRegistry_FormatValues(t *testing.T) {
	registry := NewTemplateRegistry(domain.Template{
		ID:        "values",
		Subject:   "{{value}}",
		Variables: []string{"value"},
	})

	start := time.Date(2026, time.June, 5, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"string", "plain", "plain"},
		{"int", 1200, "1200"},
		{"year", 2026, "2026"},
		{"uint", uint(7), "7"},
		{"whole float", 12.0, "12"},
		{"json id", float64(12345), "12345"},
		{"fraction", 0.125, "0.125"},
		{"long fraction", 3.14159, "3.14159"},
		{"float32", float32(1.5), "1.5"},
		{"json number", json.Number("9007199254740993"), "9007199254740993"},
		{"time", start, "Jun 5, 2026 09:30 UTC"},
		{"time pointer", &start, "Jun 5, 2026 09:30 UTC"},
		{"stringer", domain.PriorityUrgent, "urgent"},
		{"bool", true, "true"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rendered, ok := registry.RenderTemplate("values", map[string]any{"value": tt.value})
			require.True(t, ok)
			assert.Equal(t, tt.expected, rendered.Subject)
		})
	}
}

func TestTemplateRegistry_ValidateTemplateVariables(t *testing.T) {
	registry := NewTemplateRegistry(DefaultTemplates()...)

	tests := []struct {
		name     string
		vars     map[string]any
		expected ValidationResult
	}{
		{
			name:     "all present",
			vars:     map[string]any{"userName": "a", "tourName": "b", "message": "c"},
			expected: ValidationResult{Valid: true, MissingVariables: []string{}},
		},
		{
			name:     "some missing",
			vars:     map[string]any{"userName": "a"},
			expected: ValidationResult{Valid: false, MissingVariables: []string{"tourName", "message"}},
		},
		{
			name:     "extra variables ignored",
			vars:     map[string]any{"userName": "a", "tourName": "b", "message": "c", "extra": 1},
			expected: ValidationResult{Valid: true, MissingVariables: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := registry.ValidateTemplateVariables(TemplateTourUpdate, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}

	_, err := registry.ValidateTemplateVariables("missing", nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplateRegistry_Register(t *testing.T) {
	registry := NewTemplateRegistry()

	tmpl := domain.Template{ID: "custom", Subject: "Hi {{name}}", Variables: []string{"name"}}
	require.NoError(t, registry.Register(tmpl))
	assert.Error(t, registry.Register(tmpl))

	got, ok := registry.GetTemplate("custom")
	require.True(t, ok)
	got.Variables[0] = "mutated"

	again, _ := registry.GetTemplate("custom")
	assert.Equal(t, []string{"name"}, again.Variables)
}

func TestTemplateRegistry_RenderKeepsNumbers(t *testing.T) {
	registry := NewTemplateRegistry(domain.Template{
		ID:        "numbers",
		Subject:   "{{year}}",
		Body:      "{{ratio}} {{code}}",
		Variables: []string{"year", "ratio", "code"},
	})

	rendered, ok := registry.RenderTemplate("numbers", map[string]any{
		"year":  2026,
		"ratio": 0.125,
		"code":  float64(12345),
	})
	require.True(t, ok)
	assert.Equal(t, "2026", rendered.Subject)
	assert.Equal(t, "0.125 12345", rendered.Body)
}

func TestTemplateRegistry_LabelsUnnamedTemplates(t *testing.T) {
	registry := NewTemplateRegistry(domain.Template{ID: "tour_update", Subject: "s"})
	require.NoError(t, registry.Register(domain.Template{ID: "guide_reminder", Name: "Guide reminder"}))

	tmpl, ok := registry.GetTemplate("tour_update")
	require.True(t, ok)
	assert.Equal(t, "Tour Update", tmpl.Name)

	tmpl, ok = registry.GetTemplate("guide_reminder")
	require.True(t, ok)
	assert.Equal(t, "Guide reminder", tmpl.Name)
}
