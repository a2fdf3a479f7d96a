package handlers

import (
	"net/http"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/services"
)

// AdminHandler holds platform-admin endpoints. Routes are wrapped in
// PlatformAdminMiddleware; the service checks the role again.
type AdminHandler struct {
	broadcastService services.BroadcastService
}

func NewAdminHandler(broadcastService services.BroadcastService) *AdminHandler {
	return &AdminHandler{broadcastService: broadcastService}
}

// Broadcast godoc
// POST /api/admin/broadcast
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.BroadcastRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.broadcastService.Broadcast(r.Context(), user, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}
