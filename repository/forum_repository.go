package repository

import (
	"context"

	"github.com/akinalp/agora/models"
)

// ForumRepository is the minimal question/answer/comment/vote store whose
// writes the ledger piggybacks on.
type ForumRepository interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	SetAcceptedAnswer(ctx context.Context, questionID, answerID string) error
	// DeleteQuestion removes the question with its answers, their comments
	// and the votes on all of them.
	DeleteQuestion(ctx context.Context, id string) error

	CreateAnswer(ctx context.Context, a *models.Answer) error
	GetAnswer(ctx context.Context, id string) (*models.Answer, error)

	CreateComment(ctx context.Context, c *models.Comment) error

	// UpsertVote stores v, replacing the direction of an existing vote by the
	// same voter on the same target. v.ID is set to the stored row's id.
	UpsertVote(ctx context.Context, v *models.Vote) error
	GetVote(ctx context.Context, id string) (*models.Vote, error)
	DeleteVote(ctx context.Context, id string) error
}
