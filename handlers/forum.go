package handlers

import (
	"net/http"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/services"
)

// ForumHandler is the Q&A write API.
type ForumHandler struct {
	forumService services.ForumService
}

func NewForumHandler(forumService services.ForumService) *ForumHandler {
	return &ForumHandler{forumService: forumService}
}

// AskQuestion godoc
// POST /api/questions
func (h *ForumHandler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateQuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.forumService.AskQuestion(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, q)
}

// DeleteQuestion godoc
// DELETE /api/questions/{id}
// The author or a platform admin. Notifications about the thread go with it.
func (h *ForumHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.forumService.DeleteQuestion(r.Context(), user, r.PathValue("id")); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "question deleted"})
}

// PostAnswer godoc
// POST /api/questions/{id}/answers
func (h *ForumHandler) PostAnswer(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.forumService.PostAnswer(r.Context(), user.ID, r.PathValue("id"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, a)
}

// AcceptAnswer godoc
// POST /api/answers/{id}/accept
func (h *ForumHandler) AcceptAnswer(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	q, err := h.forumService.AcceptAnswer(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, q)
}

// PostComment godoc
// POST /api/comments
func (h *ForumHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.forumService.PostComment(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, c)
}

// CastVote godoc
// POST /api/votes
func (h *ForumHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CastVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.forumService.CastVote(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, v)
}

// RetractVote godoc
// DELETE /api/votes/{id}
func (h *ForumHandler) RetractVote(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.forumService.RetractVote(r.Context(), user.ID, r.PathValue("id")); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "vote retracted"})
}
