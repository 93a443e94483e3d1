package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
)

type failingPreferenceRepo struct {
	err error
}

func (r *failingPreferenceRepo) GetPreference(_ context.Context, _ string) (*domain.Preference, error) {
	return nil, r.err
}

func (r *failingPreferenceRepo) SavePreference(_ context.Context, _ *domain.Preference) error {
	return r.err
}

func boolPtr(b bool) *bool { return &b }

func TestPreferenceResolver_Defaults(t *testing.T) {
	resolver := NewPreferenceResolver(NewMemoryPreferenceStore())

	pref, err := resolver.GetUserPreferences(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", pref.UserID)
	assert.True(t, pref.EmailEnabled)
	assert.True(t, pref.PushEnabled)
	assert.False(t, pref.SMSEnabled)
	assert.True(t, pref.TourUpdatesEnabled)
	assert.True(t, pref.RegistrationUpdatesEnabled)
	assert.True(t, pref.SystemUpdatesEnabled)
}

func TestPreferenceResolver_UpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	resolver := NewPreferenceResolver(NewMemoryPreferenceStore())

	updated, err := resolver.UpdateUserPreferences(ctx, "user-1", domain.PreferenceUpdate{
		EmailEnabled: boolPtr(false),
		SMSEnabled:   boolPtr(true),
	})
	require.NoError(t, err)
	assert.False(t, updated.EmailEnabled)
	assert.True(t, updated.SMSEnabled)
	assert.True(t, updated.PushEnabled, "untouched fields keep their values")

	got, err := resolver.GetUserPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, updated.EmailEnabled, got.EmailEnabled)
	assert.Equal(t, updated.SMSEnabled, got.SMSEnabled)
	assert.Equal(t, updated.PushEnabled, got.PushEnabled)
	assert.Equal(t, updated.TourUpdatesEnabled, got.TourUpdatesEnabled)
}

func TestPreferenceResolver_RepositoryError(t *testing.T) {
	repoErr := errors.New("connection refused")
	resolver := NewPreferenceResolver(&failingPreferenceRepo{err: repoErr})

	_, err := resolver.GetUserPreferences(context.Background(), "user-1")
	assert.ErrorIs(t, err, repoErr)

	_, err = resolver.UpdateUserPreferences(context.Background(), "user-1", domain.PreferenceUpdate{})
	assert.ErrorIs(t, err, repoErr)
}
