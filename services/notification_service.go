package services

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/ws"
)

const (
	defaultNotificationLimit = 30
	maxNotificationLimit     = 100
)

// NotificationService is the recipient-facing side of the notification
// store. Every method is scoped to the caller, who must be the recipient.
//
// Read, read-all and delete are echoed to the caller's sessions so other
// tabs stay in step.
type NotificationService interface {
	List(ctx context.Context, recipientID string, limit int, beforeID string) (*models.NotificationPage, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, callerID, id string) (*models.MarkReadResult, error)
	// MarkAllRead is one UPDATE. A notification committed concurrently may
	// end up either read or unread.
	MarkAllRead(ctx context.Context, recipientID string) (*models.MarkAllReadResult, error)
	Delete(ctx context.Context, callerID, id string) error
}

type notificationService struct {
	db     *sql.DB
	stores repository.StoreFactory
	repo   repository.NotificationRepository
	hub    ws.Publisher
	logger *zap.Logger
}

// NewNotificationService builds the store service.
func NewNotificationService(db *sql.DB, stores repository.StoreFactory, hub ws.Publisher, logger *zap.Logger) NotificationService {
	return &notificationService{
		db:     db,
		stores: stores,
		repo:   stores(db).Notifications,
		hub:    hub,
		logger: logger.Named("notifications"),
	}
}

func (s *notificationService) List(ctx context.Context, recipientID string, limit int, beforeID string) (*models.NotificationPage, error) {
	limit = clampLimit(limit, defaultNotificationLimit, maxNotificationLimit)

	// One extra row tells whether another page exists.
	rows, err := s.repo.ListByRecipient(ctx, recipientID, limit+1, beforeID)
	if err != nil {
		return nil, err
	}

	page := &models.NotificationPage{Notifications: rows}
	if len(rows) > limit {
		page.Notifications = rows[:limit]
		page.NextBefore = rows[limit-1].ID
	}

	page.UnreadCount, err = s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

// owned loads a notification and checks it belongs to callerID.
func (s *notificationService) owned(ctx context.Context, callerID, id string) (*models.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != callerID {
		return nil, fmt.Errorf("%w: notification belongs to another user", pkg.ErrForbidden)
	}
	return n, nil
}

func (s *notificationService) MarkRead(ctx context.Context, callerID, id string) (*models.MarkReadResult, error) {
	if _, err := s.owned(ctx, callerID, id); err != nil {
		return nil, err
	}

	changed, err := s.repo.MarkRead(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.hub.PushToUser(callerID, ws.Event{
			Op:   ws.OpNotificationRead,
			Data: ws.NotificationReadData{ID: id},
		})
	}
	return &models.MarkReadResult{AlreadyRead: !changed}, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID string) (*models.MarkAllReadResult, error) {
	marked, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if marked > 0 {
		s.hub.PushToUser(recipientID, ws.Event{
			Op:   ws.OpNotificationReadAll,
			Data: ws.NotificationReadAllData{Marked: marked},
		})
	}
	return &models.MarkAllReadResult{Marked: marked}, nil
}

func (s *notificationService) Delete(ctx context.Context, callerID, id string) error {
	if _, err := s.owned(ctx, callerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.hub.PushToUser(callerID, ws.Event{
		Op:   ws.OpNotificationDelete,
		Data: ws.NotificationDeleteData{ID: id},
	})
	return nil
}

// deleteQuestionNotifications removes the rows about one question thread
// inside tx and tells each recipient after commit. It must run before the
// thread itself is deleted.
func deleteQuestionNotifications(
	ctx context.Context,
	tx *database.Tx,
	store *repository.Store,
	hub ws.Publisher,
	questionID string,
) (int, error) {
	doomed, err := store.Notifications.ListByQuestion(ctx, questionID)
	if err != nil {
		return 0, err
	}
	deleted, err := store.Notifications.DeleteByQuestion(ctx, questionID)
	if err != nil {
		return 0, err
	}

	tx.AfterCommit(func() { pushDeletes(hub, doomed) })
	return deleted, nil
}

func pushDeletes(hub ws.Publisher, doomed []models.Notification) {
	for _, n := range doomed {
		hub.PushToUser(n.RecipientID, ws.Event{
			Op:   ws.OpNotificationDelete,
			Data: ws.NotificationDeleteData{ID: n.ID},
		})
	}
}
