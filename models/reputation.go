package models

import "time"

// ReputationReason names why a ledger entry was written. Each reason has a
// fixed signed delta.
type ReputationReason string

const (
	ReasonQuestionPosted  ReputationReason = "question_posted"
	ReasonQuestionUpvoted ReputationReason = "question_upvoted"
	ReasonAnswerUpvoted   ReputationReason = "answer_upvoted"
	ReasonAnswerAccepted  ReputationReason = "answer_accepted"
	ReasonDownvoted       ReputationReason = "downvoted"
	ReasonCommunityJoined ReputationReason = "community_joined"
)

var reasonDeltas = map[ReputationReason]int{
	ReasonQuestionPosted:  5,
	ReasonQuestionUpvoted: 5,
	ReasonAnswerUpvoted:   10,
	ReasonAnswerAccepted:  15,
	ReasonDownvoted:       -2,
	ReasonCommunityJoined: 1,
}

// Delta returns the points for the reason, or false for an unknown reason.
func (r ReputationReason) Delta() (int, bool) {
	d, ok := reasonDeltas[r]
	return d, ok
}

// ReputationEntry is one append-only ledger row.
type ReputationEntry struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	ActorID     string           `json:"actor_id,omitempty"`
	Delta       int              `json:"delta"`
	Reason      ReputationReason `json:"reason"`
	SubjectType SubjectType      `json:"subject_type"`
	SubjectID   string           `json:"subject_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ReputationSummary is what a profile page shows.
type ReputationSummary struct {
	UserID string `json:"user_id"`
	// Total is the signed ledger sum and may be negative.
	Total int `json:"total"`
	// DisplayTotal is Total floored at zero, for presentation only.
	DisplayTotal int `json:"display_total"`
	Rank         int `json:"rank"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Total    int    `json:"total"`
}

// ReputationDrift reports a user whose totals disagree between the aggregate
// query and a replay of their entries.
type ReputationDrift struct {
	UserID    string `json:"user_id"`
	Aggregate int    `json:"aggregate"`
	Replayed  int    `json:"replayed"`
}
