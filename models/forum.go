package models

import "time"

// Question is the root of a thread.
type Question struct {
	ID               string    `json:"id"`
	AuthorID         string    `json:"author_id"`
	CommunityID      *string   `json:"community_id,omitempty"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	AcceptedAnswerID *string   `json:"accepted_answer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Answer belongs to a question.
type Answer struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Comment hangs off a question or an answer.
type Comment struct {
	ID         string      `json:"id"`
	ParentType SubjectType `json:"parent_type"`
	ParentID   string      `json:"parent_id"`
	AuthorID   string      `json:"author_id"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Vote is one user's up (1) or down (-1) vote on a post.
type Vote struct {
	ID         string      `json:"id"`
	VoterID    string      `json:"voter_id"`
	TargetType SubjectType `json:"target_type"`
	TargetID   string      `json:"target_id"`
	Direction  int         `json:"direction"`
	CreatedAt  time.Time   `json:"created_at"`
}

// CreateQuestionRequest is the body of POST /api/questions.
type CreateQuestionRequest struct {
	Title       string  `json:"title" validate:"required,min=5,max=300"`
	Body        string  `json:"body" validate:"required,max=30000"`
	CommunityID *string `json:"community_id"`
}

// CreateAnswerRequest is the body of POST /api/questions/{id}/answers.
type CreateAnswerRequest struct {
	Body string `json:"body" validate:"required,max=30000"`
}

// CreateCommentRequest is the body of POST /api/comments.
type CreateCommentRequest struct {
	ParentType SubjectType `json:"parent_type" validate:"required,oneof=question answer"`
	ParentID   string      `json:"parent_id" validate:"required"`
	Body       string      `json:"body" validate:"required,max=2000"`
}

// CastVoteRequest is the body of POST /api/votes.
type CastVoteRequest struct {
	TargetType SubjectType `json:"target_type" validate:"required,oneof=question answer"`
	TargetID   string      `json:"target_id" validate:"required"`
	Direction  int         `json:"direction" validate:"required,oneof=1 -1"`
}
