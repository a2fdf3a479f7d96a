package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/agora/services"
	"github.com/akinalp/agora/ws"
)

const readyTimeout = 5 * time.Second

// registerHubCallbacks connects the hub to the services it must not import.
// A new session gets a ready frame carrying its id and the current unread
// count, so the client can reconcile without an extra HTTP call.
func registerHubCallbacks(hub *ws.Hub, notifications services.NotificationService, logger *zap.Logger) {
	log := logger.Named("callbacks")

	hub.OnSessionOpen(func(c *ws.Client) {
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		defer cancel()

		ready := ws.ReadyData{SessionID: c.SessionID(), UserID: c.UserID()}
		unread, err := notifications.UnreadCount(ctx, c.UserID())
		if err != nil {
			// sent without a count; the client's reconcile poll supplies it
			log.Warn("failed to load unread count for ready frame",
				zap.String("user_id", c.UserID()),
				zap.Error(err),
			)
		} else {
			ready.UnreadCount = &unread
		}

		hub.PushToSession(c.SessionID(), ws.Event{Op: ws.OpReady, Data: ready})
	})
}
