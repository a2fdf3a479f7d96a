package ws

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/pkg/ratelimit"
)

// TokenValidator is the one method of the auth service the handshake needs.
// Declared here so ws does not import services.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// Handler upgrades authenticated HTTP requests to websocket sessions.
type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
	limiter        *ratelimit.WindowLimiter
	upgrader       websocket.Upgrader
	logger         *zap.Logger
}

// NewHandler builds the handshake handler. An empty allowedOrigins, or one
// containing "*", accepts any origin.
func NewHandler(
	hub *Hub,
	tokenValidator TokenValidator,
	limiter *ratelimit.WindowLimiter,
	allowedOrigins []string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		hub:            hub,
		tokenValidator: tokenValidator,
		limiter:        limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.Named("ws"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// tokenFromRequest prefers the Authorization header and falls back to the
// token query parameter, which is all a browser WebSocket can send.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// HandleConnection authenticates, upgrades and registers the session, then
// blocks in the read pump until the session ends.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		ip := ratelimit.ExtractIP(r)
		if !h.limiter.Allow(ip) {
			pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
				ratelimit.FormatRetryMessage(h.limiter.RetryAfterSeconds(ip)))
			return
		}
	}

	token := tokenFromRequest(r)
	if token == "" {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	claims, err := h.tokenValidator.ValidateAccessToken(token)
	if err != nil {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return
	}

	client := h.hub.Register(claims.UserID, conn)

	go client.WritePump()
	client.ReadPump()
}
