package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/pkg/validate"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/ws"
)

// BroadcastService sends a platform announcement to every user.
type BroadcastService interface {
	Broadcast(ctx context.Context, sender *models.User, req *models.BroadcastRequest) (*models.BroadcastResult, error)
}

type broadcastService struct {
	db     *sql.DB
	stores repository.StoreFactory
	hub    ws.Publisher
	logger *zap.Logger
}

// NewBroadcastService builds the broadcaster.
func NewBroadcastService(db *sql.DB, stores repository.StoreFactory, hub ws.Publisher, logger *zap.Logger) BroadcastService {
	return &broadcastService{
		db:     db,
		stores: stores,
		hub:    hub,
		logger: logger.Named("broadcast"),
	}
}

// Broadcast writes one row per user other than the sender in a single
// transaction. After commit each row goes to every session of its recipient,
// so a user with two tabs gets two pushes of the same single row. Every
// connected session, the sender's included, then gets one broadcast frame.
func (s *broadcastService) Broadcast(ctx context.Context, sender *models.User, req *models.BroadcastRequest) (*models.BroadcastResult, error) {
	if sender == nil || !sender.IsPlatformAdmin() {
		return nil, fmt.Errorf("%w: platform admin access required", pkg.ErrForbidden)
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	result := &models.BroadcastResult{BroadcastID: uuid.NewString()}
	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)
		result.Recipients = 0
		result.Delivered = 0
		result.Announced = 0

		recipients, err := store.Users.ListIDs(ctx, sender.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		rows := make([]models.Notification, 0, len(recipients))
		for _, recipientID := range recipients {
			n := models.Notification{
				RecipientID: recipientID,
				ActorID:     sender.ID,
				Type:        models.NotificationBroadcast,
				SubjectType: models.SubjectBroadcast,
				SubjectID:   result.BroadcastID,
				Title:       req.Title,
				Message:     req.Message,
				Link:        req.Link,
				CreatedAt:   now,
			}
			if err := store.Notifications.Create(ctx, &n); err != nil {
				return err
			}
			rows = append(rows, n)
		}
		result.Recipients = len(rows)

		tx.AfterCommit(func() {
			for _, n := range rows {
				result.Delivered += s.hub.PushToUser(n.RecipientID, ws.Event{
					Op:   ws.OpNotificationCreate,
					Data: ws.NotificationCreateData{Notification: n},
				})
			}
			result.Announced = s.hub.PushToAll(ws.Event{
				Op: ws.OpBroadcast,
				Data: ws.BroadcastData{
					BroadcastID: result.BroadcastID,
					Title:       req.Title,
					Message:     req.Message,
					Link:        req.Link,
				},
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("broadcast sent",
		zap.String("broadcast_id", result.BroadcastID),
		zap.String("sender_id", sender.ID),
		zap.Int("recipients", result.Recipients),
		zap.Int("delivered", result.Delivered),
		zap.Int("announced", result.Announced),
	)
	return result, nil
}
