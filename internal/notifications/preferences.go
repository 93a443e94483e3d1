package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/tourdesk/internal/domain"
)

// PreferenceResolver reads and updates per-user notification preferences.
// Users without a record get the defaults on first access.
type PreferenceResolver struct {
	repo PreferenceRepository
	mu   sync.Mutex
}

// NewPreferenceResolver creates a resolver backed by repo.
func NewPreferenceResolver(repo PreferenceRepository) *PreferenceResolver {
	return &PreferenceResolver{repo: repo}
}

// GetUserPreferences returns the user's preferences, creating defaults if absent.
func (r *PreferenceResolver) GetUserPreferences(ctx context.Context, userID string) (*domain.Preference, error) {
	pref, err := r.repo.GetPreference(ctx, userID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, ErrPreferenceNotFound) {
		return nil, fmt.Errorf("get preference: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loadOrCreate(ctx, userID)
}

// UpdateUserPreferences merges update into the stored record and returns the result.
func (r *PreferenceResolver) UpdateUserPreferences(ctx context.Context, userID string, update domain.PreferenceUpdate) (*domain.Preference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pref, err := r.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	update.Apply(pref)
	pref.UpdatedAt = time.Now()

	if err := r.repo.SavePreference(ctx, pref); err != nil {
		return nil, fmt.Errorf("save preference: %w", err)
	}

	slog.Debug("user preferences updated", "user_id", userID)
	return pref, nil
}

// loadOrCreate must be called with r.mu held.
func (r *PreferenceResolver) loadOrCreate(ctx context.Context, userID string) (*domain.Preference, error) {
	pref, err := r.repo.GetPreference(ctx, userID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, ErrPreferenceNotFound) {
		return nil, fmt.Errorf("get preference: %w", err)
	}

	pref = domain.DefaultPreference(userID)
	if err := r.repo.SavePreference(ctx, pref); err != nil {
		return nil, fmt.Errorf("save default preference: %w", err)
	}
	return pref, nil
}
