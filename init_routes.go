package main

import (
	"net/http"

	"github.com/akinalp/agora/middleware"
)

// initRoutes binds every endpoint. Literal segments ("read-all",
// "unread-count") are registered next to their {id} siblings; the ServeMux
// picks the more specific pattern.
func initRoutes(mux *http.ServeMux, h *Handlers, authMw *middleware.AuthMiddleware) {
	platformAdminMw := middleware.NewPlatformAdminMiddleware()

	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}
	authAdmin := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(platformAdminMw.Require(handler))
	}

	mux.HandleFunc("GET /api/health", h.Health.Check)

	// Notifications
	mux.Handle("GET /api/notifications", auth(h.Notification.List))
	mux.Handle("GET /api/notifications/unread-count", auth(h.Notification.UnreadCount))
	mux.Handle("POST /api/notifications/read-all", auth(h.Notification.MarkAllRead))
	mux.Handle("POST /api/notifications/{id}/read", auth(h.Notification.MarkRead))
	mux.Handle("DELETE /api/notifications/{id}", auth(h.Notification.Delete))

	// Reputation
	mux.Handle("GET /api/users/{id}/reputation", auth(h.Reputation.Summary))
	mux.Handle("GET /api/users/{id}/reputation/history", auth(h.Reputation.History))
	mux.Handle("GET /api/reputation/leaderboard", auth(h.Reputation.Leaderboard))

	// Communities
	mux.Handle("POST /api/communities", auth(h.Community.Create))
	mux.Handle("GET /api/communities/{id}", auth(h.Community.Get))
	mux.Handle("GET /api/communities/{id}/members", auth(h.Community.Members))
	mux.Handle("POST /api/communities/{id}/join", auth(h.Community.Join))
	mux.Handle("POST /api/communities/{id}/leave", auth(h.Community.Leave))
	mux.Handle("POST /api/communities/{id}/members/{userId}/promote", auth(h.Community.Promote))
	mux.Handle("POST /api/communities/{id}/members/{userId}/demote", auth(h.Community.Demote))

	// Q&A
	mux.Handle("POST /api/questions", auth(h.Forum.AskQuestion))
	mux.Handle("DELETE /api/questions/{id}", auth(h.Forum.DeleteQuestion))
	mux.Handle("POST /api/questions/{id}/answers", auth(h.Forum.PostAnswer))
	mux.Handle("POST /api/answers/{id}/accept", auth(h.Forum.AcceptAnswer))
	mux.Handle("POST /api/comments", auth(h.Forum.PostComment))
	mux.Handle("POST /api/votes", auth(h.Forum.CastVote))
	mux.Handle("DELETE /api/votes/{id}", auth(h.Forum.RetractVote))

	// Admin
	mux.Handle("POST /api/admin/broadcast", authAdmin(h.Admin.Broadcast))

	// The websocket handshake authenticates on its own: browsers cannot set
	// headers on an upgrade request.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
