package handlers

import (
	"net/http"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/services"
)

// CommunityHandler handles community creation and membership changes.
type CommunityHandler struct {
	membershipService services.MembershipService
}

func NewCommunityHandler(membershipService services.MembershipService) *CommunityHandler {
	return &CommunityHandler{membershipService: membershipService}
}

// Create godoc
// POST /api/communities
func (h *CommunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateCommunityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	community, err := h.membershipService.CreateCommunity(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, community)
}

// Get godoc
// GET /api/communities/{id}
func (h *CommunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	community, err := h.membershipService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, community)
}

// Members godoc
// GET /api/communities/{id}/members
func (h *CommunityHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.membershipService.Members(r.Context(), r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, members)
}

// Join godoc
// POST /api/communities/{id}/join
// Joining twice is not an error; the second call reports already_member.
func (h *CommunityHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.membershipService.Join(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}

// Leave godoc
// POST /api/communities/{id}/leave
func (h *CommunityHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.membershipService.Leave(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}

// Promote godoc
// POST /api/communities/{id}/members/{userId}/promote
// Body: {"role": "moderator" | "admin"}
func (h *CommunityHandler) Promote(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.RoleChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.membershipService.Promote(r.Context(), user.ID, r.PathValue("id"), r.PathValue("userId"), req.Role)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}

// Demote godoc
// POST /api/communities/{id}/members/{userId}/demote
func (h *CommunityHandler) Demote(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.membershipService.Demote(r.Context(), user.ID, r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, result)
}
