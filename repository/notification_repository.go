package repository

import (
	"context"
	"time"

	"github.com/akinalp/agora/models"
)

// DuplicateKey identifies "the same notification" for recency dedup. With
// ThreadID set, rows match on the thread; otherwise on the subject.
type DuplicateKey struct {
	RecipientID string
	ActorID     string
	Type        models.NotificationType
	SubjectType models.SubjectType
	SubjectID   string
	ThreadID    string
}

// NotificationRepository stores notifications. Rows are never updated except
// for the is_read flag.
type NotificationRepository interface {
	// Create stores n. An empty ID is filled with a new uuid.
	Create(ctx context.Context, n *models.Notification) error
	// FindRecent returns the id of the newest row matching key created at or
	// after since, or "" when there is none.
	FindRecent(ctx context.Context, key DuplicateKey, since time.Time) (string, error)
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	// ListByRecipient pages newest-first. beforeID, when set, must be a
	// notification of the same recipient; rows strictly older than it are returned.
	ListByRecipient(ctx context.Context, recipientID string, limit int, beforeID string) ([]models.Notification, error)
	// ListByQuestion returns the notifications DeleteByQuestion would remove.
	ListByQuestion(ctx context.Context, questionID string) ([]models.Notification, error)
	// MarkRead reports whether the row changed (false when it was already read).
	MarkRead(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	Delete(ctx context.Context, id string) error
	// DeleteByQuestion removes notifications about a question and about
	// anything posted in its thread.
	DeleteByQuestion(ctx context.Context, questionID string) (int, error)
}
