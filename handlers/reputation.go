package handlers

import (
	"net/http"

	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/services"
)

// ReputationHandler exposes the read side of the ledger. Anyone signed in can
// look at anyone's reputation.
type ReputationHandler struct {
	reputationService services.ReputationService
}

func NewReputationHandler(reputationService services.ReputationService) *ReputationHandler {
	return &ReputationHandler{reputationService: reputationService}
}

// Summary godoc
// GET /api/users/{id}/reputation
func (h *ReputationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reputationService.GetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, summary)
}

// History godoc
// GET /api/users/{id}/reputation/history?limit=
func (h *ReputationHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	entries, err := h.reputationService.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, entries)
}

// Leaderboard godoc
// GET /api/reputation/leaderboard?limit=&offset=
func (h *ReputationHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	board, err := h.reputationService.Leaderboard(r.Context(), limit, offset)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, board)
}
