// Package postgres provides PostgreSQL implementations of the notifications repositories.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/tourdesk/internal/domain"
	"github.com/bissquit/tourdesk/internal/notifications"
)

const messageColumns = `id, user_id, template_id, subject, body, type, channel, status,
	scheduled_at, sent_at, failed_at, retry_count, max_retries, error, metadata,
	created_at, updated_at`

// Repository implements notifications.MessageRepository and
// notifications.PreferenceRepository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// PutMessage inserts or replaces a notification message.
func (r *Repository) PutMessage(ctx context.Context, msg *domain.NotificationMessage) error {
	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notification_messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			status = EXCLUDED.status,
			scheduled_at = EXCLUDED.scheduled_at,
			sent_at = EXCLUDED.sent_at,
			failed_at = EXCLUDED.failed_at,
			retry_count = EXCLUDED.retry_count,
			max_retries = EXCLUDED.max_retries,
			error = EXCLUDED.error,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.Exec(ctx, query,
		msg.ID,
		msg.UserID,
		msg.TemplateID,
		msg.Subject,
		msg.Body,
		msg.Type,
		msg.Channel,
		msg.Status,
		msg.ScheduledAt,
		msg.SentAt,
		msg.FailedAt,
		msg.RetryCount,
		msg.MaxRetries,
		msg.Error,
		metadata,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	return nil
}

// GetMessage retrieves a notification message by ID.
func (r *Repository) GetMessage(ctx context.Context, id string) (*domain.NotificationMessage, error) {
	if uuid.Validate(id) != nil {
		return nil, notifications.ErrMessageNotFound
	}

	query := `SELECT ` + messageColumns + ` FROM notification_messages WHERE id = $1`

	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// DeleteMessage deletes a notification message.
func (r *Repository) DeleteMessage(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return notifications.ErrMessageNotFound
	}

	result, err := r.db.Exec(ctx, `DELETE FROM notification_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	if result.RowsAffected() == 0 {
		return notifications.ErrMessageNotFound
	}
	return nil
}

// ListMessages returns messages matching filter ordered by creation time.
func (r *Repository) ListMessages(ctx context.Context, filter notifications.MessageFilter) ([]*domain.NotificationMessage, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.SentBefore.IsZero() {
		args = append(args, filter.SentBefore)
		conditions = append(conditions, fmt.Sprintf("sent_at < $%d", len(args)))
	}

	query := `SELECT ` + messageColumns + ` FROM notification_messages`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.NotificationMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// GetPreference retrieves the preference record of a user.
func (r *Repository) GetPreference(ctx context.Context, userID string) (*domain.Preference, error) {
	query := `
		SELECT user_id, email_enabled, push_enabled, sms_enabled,
			tour_updates_enabled, registration_updates_enabled, system_updates_enabled, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`
	var pref domain.Preference
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&pref.UserID,
		&pref.EmailEnabled,
		&pref.PushEnabled,
		&pref.SMSEnabled,
		&pref.TourUpdatesEnabled,
		&pref.RegistrationUpdatesEnabled,
		&pref.SystemUpdatesEnabled,
		&pref.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return &pref, nil
}

// SavePreference inserts or replaces the preference record of a user.
func (r *Repository) SavePreference(ctx context.Context, pref *domain.Preference) error {
	query := `
		INSERT INTO notification_preferences (
			user_id, email_enabled, push_enabled, sms_enabled,
			tour_updates_enabled, registration_updates_enabled, system_updates_enabled, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			push_enabled = EXCLUDED.push_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			tour_updates_enabled = EXCLUDED.tour_updates_enabled,
			registration_updates_enabled = EXCLUDED.registration_updates_enabled,
			system_updates_enabled = EXCLUDED.system_updates_enabled,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		pref.UserID,
		pref.EmailEnabled,
		pref.PushEnabled,
		pref.SMSEnabled,
		pref.TourUpdatesEnabled,
		pref.RegistrationUpdatesEnabled,
		pref.SystemUpdatesEnabled,
		pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	return nil
}

func scanMessage(row pgx.Row) (*domain.NotificationMessage, error) {
	var (
		msg      domain.NotificationMessage
		metadata []byte
	)
	err := row.Scan(
		&msg.ID,
		&msg.UserID,
		&msg.TemplateID,
		&msg.Subject,
		&msg.Body,
		&msg.Type,
		&msg.Channel,
		&msg.Status,
		&msg.ScheduledAt,
		&msg.SentAt,
		&msg.FailedAt,
		&msg.RetryCount,
		&msg.MaxRetries,
		&msg.Error,
		&metadata,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &msg, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return raw, nil
}
