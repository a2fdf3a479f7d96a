package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
)

const notificationColumns = `id, recipient_id, actor_id, type, subject_type, subject_id,
	thread_id, title, message, link, is_read, created_at`

// questionScope matches every notification belonging to the question bound
// to the five placeholders. Rows written before thread_id existed are found
// through the answer and comment tables.
const questionScope = `
	thread_id = ?
	OR (subject_type = 'question' AND subject_id = ?)
	OR (subject_type = 'answer' AND subject_id IN (SELECT id FROM answers WHERE question_id = ?))
	OR (subject_type = 'comment' AND subject_id IN (
	     SELECT c.id FROM comments c
	     WHERE (c.parent_type = 'question' AND c.parent_id = ?)
	        OR (c.parent_type = 'answer' AND c.parent_id IN (SELECT id FROM answers WHERE question_id = ?))))`

type sqliteNotificationRepo struct {
	db database.TxQuerier
}

// NewSQLiteNotificationRepo builds a NotificationRepository over db.
func NewSQLiteNotificationRepo(db database.TxQuerier) NotificationRepository {
	return &sqliteNotificationRepo{db: db}
}

func (r *sqliteNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.ActorID, n.Type, n.SubjectType, n.SubjectID, n.ThreadID,
		n.Title, n.Message, n.Link, n.IsRead, toMillis(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *sqliteNotificationRepo) FindRecent(ctx context.Context, key DuplicateKey, since time.Time) (string, error) {
	match := `subject_type = ? AND subject_id = ?`
	args := []any{key.RecipientID, key.Type, key.ActorID, key.SubjectType, key.SubjectID, toMillis(since)}
	if key.ThreadID != "" {
		match = `thread_id = ?`
		args = []any{key.RecipientID, key.Type, key.ActorID, key.ThreadID, toMillis(since)}
	}

	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM notifications
		WHERE recipient_id = ? AND type = ? AND actor_id = ? AND `+match+`
		  AND created_at >= ?
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`,
		args...,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up recent notification: %w", err)
	}
	return id, nil
}

func (r *sqliteNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (r *sqliteNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, limit int, beforeID string) ([]models.Notification, error) {
	if beforeID == "" {
		rows, err := r.db.QueryContext(ctx, `
			SELECT `+notificationColumns+` FROM notifications
			WHERE recipient_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?`,
			recipientID, limit,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to list notifications: %w", err)
		}
		return collectNotifications(rows)
	}

	var cursorAt, cursorSeq int64
	err := r.db.QueryRowContext(ctx,
		`SELECT created_at, seq FROM notifications WHERE id = ? AND recipient_id = ?`,
		beforeID, recipientID,
	).Scan(&cursorAt, &cursorSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: unknown cursor", pkg.ErrBadRequest)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve notification cursor: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = ?
		  AND (created_at < ? OR (created_at = ? AND seq < ?))
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`,
		recipientID, cursorAt, cursorAt, cursorSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return collectNotifications(rows)
}

func (r *sqliteNotificationRepo) ListByQuestion(ctx context.Context, questionID string) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE `+questionScope+` ORDER BY seq`,
		questionID, questionID, questionID, questionID, questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for question: %w", err)
	}
	return collectNotifications(rows)
}

func (r *sqliteNotificationRepo) MarkRead(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND is_read = 0`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := affected(result)
	return n > 0, err
}

// MarkAllRead is a single statement: rows inserted concurrently are either
// covered or not, never half-updated.
func (r *sqliteNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return affected(result)
}

func (r *sqliteNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *sqliteNotificationRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return requireAffected(result)
}

func (r *sqliteNotificationRepo) DeleteByQuestion(ctx context.Context, questionID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE `+questionScope,
		questionID, questionID, questionID, questionID, questionID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications for question: %w", err)
	}
	return affected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	n := &models.Notification{}
	var createdAt int64

	err := row.Scan(
		&n.ID, &n.RecipientID, &n.ActorID, &n.Type, &n.SubjectType, &n.SubjectID, &n.ThreadID,
		&n.Title, &n.Message, &n.Link, &n.IsRead, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	n.CreatedAt = fromMillis(createdAt)
	return n, nil
}

func collectNotifications(rows *sql.Rows) ([]models.Notification, error) {
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, nil
}
