//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
	pkgpostgres "github.com/bissquit/tourdesk/internal/pkg/postgres"
	"github.com/bissquit/tourdesk/internal/testutil"
	"github.com/bissquit/tourdesk/migrations"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	if err := pkgpostgres.Migrate(migrations.FS, pgContainer.ConnectionString); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}

	os.Exit(code)
}

func newMessage(userID string, status domain.MessageStatus) *domain.NotificationMessage {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.NotificationMessage{
		ID:         uuid.NewString(),
		UserID:     userID,
		TemplateID: notifications.TemplateTourCancelled,
		Type:       domain.CategoryTourCancelled,
		Channel:    domain.ChannelEmail,
		Status:     status,
		MaxRetries: 3,
		Metadata:   map[string]any{"event_id": "evt-1"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestRepository_MessageLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB)

	msg := newMessage(uuid.NewString(), domain.MessageStatusQueued)
	require.NoError(t, repo.PutMessage(ctx, msg))

	got, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.UserID, got.UserID)
	assert.Equal(t, domain.ChannelEmail, got.Channel)
	assert.Equal(t, domain.MessageStatusQueued, got.Status)
	assert.Equal(t, "evt-1", got.Metadata["event_id"])
	assert.Nil(t, got.SentAt)

	sentAt := time.Now().UTC().Truncate(time.Microsecond)
	got.Status = domain.MessageStatusSent
	got.Subject = "Tour cancelled"
	got.Body = "Sorry"
	got.SentAt = &sentAt
	got.RetryCount = 1
	require.NoError(t, repo.PutMessage(ctx, got))

	updated, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStatusSent, updated.Status)
	assert.Equal(t, "Tour cancelled", updated.Subject)
	assert.Equal(t, 1, updated.RetryCount)
	require.NotNil(t, updated.SentAt)
	assert.True(t, sentAt.Equal(*updated.SentAt))

	require.NoError(t, repo.DeleteMessage(ctx, msg.ID))

	_, err = repo.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, notifications.ErrMessageNotFound)
	assert.ErrorIs(t, repo.DeleteMessage(ctx, msg.ID), notifications.ErrMessageNotFound)

	_, err = repo.GetMessage(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, notifications.ErrMessageNotFound)
}

func TestRepository_ListMessages(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB)
	userID := uuid.NewString()

	old := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Microsecond)
	recent := time.Now().UTC().Truncate(time.Microsecond)

	sentOld := newMessage(userID, domain.MessageStatusSent)
	sentOld.SentAt = &old
	sentRecent := newMessage(userID, domain.MessageStatusSent)
	sentRecent.SentAt = &recent
	failed := newMessage(userID, domain.MessageStatusFailed)
	other := newMessage(uuid.NewString(), domain.MessageStatusQueued)

	for _, m := range []*domain.NotificationMessage{sentOld, sentRecent, failed, other} {
		require.NoError(t, repo.PutMessage(ctx, m))
	}

	byUser, err := repo.ListMessages(ctx, notifications.MessageFilter{UserID: userID})
	require.NoError(t, err)
	assert.Len(t, byUser, 3)

	sent, err := repo.ListMessages(ctx, notifications.MessageFilter{UserID: userID, Status: domain.MessageStatusSent})
	require.NoError(t, err)
	assert.Len(t, sent, 2)

	expired, err := repo.ListMessages(ctx, notifications.MessageFilter{
		UserID:     userID,
		Status:     domain.MessageStatusSent,
		SentBefore: time.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, sentOld.ID, expired[0].ID)

	none, err := repo.ListMessages(ctx, notifications.MessageFilter{UserID: uuid.NewString()})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_Preferences(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB)
	userID := uuid.NewString()

	_, err := repo.GetPreference(ctx, userID)
	assert.ErrorIs(t, err, notifications.ErrPreferenceNotFound)

	pref := domain.DefaultPreference(userID)
	pref.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.SavePreference(ctx, pref))

	got, err := repo.GetPreference(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, pref.EmailEnabled, got.EmailEnabled)
	assert.Equal(t, pref.SMSEnabled, got.SMSEnabled)

	got.SMSEnabled = true
	got.TourUpdatesEnabled = false
	require.NoError(t, repo.SavePreference(ctx, got))

	updated, err := repo.GetPreference(ctx, userID)
	require.NoError(t, err)
	assert.True(t, updated.SMSEnabled)
	assert.False(t, updated.TourUpdatesEnabled)
}

func TestRepository_WithPreferenceResolver(t *testing.T) {
	ctx := context.Background()
	resolver := notifications.NewPreferenceResolver(NewRepository(testDB))
	userID := uuid.NewString()

	pref, err := resolver.GetUserPreferences(ctx, userID)
	require.NoError(t, err)
	assert.True(t, pref.EmailEnabled)

	disabled := false
	updated, err := resolver.UpdateUserPreferences(ctx, userID, domain.PreferenceUpdate{EmailEnabled: &disabled})
	require.NoError(t, err)
	assert.False(t, updated.EmailEnabled)

	reloaded, err := resolver.GetUserPreferences(ctx, userID)
	require.NoError(t, err)
	assert.False(t, reloaded.EmailEnabled)
}
