package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/pkg/ratelimit"
	"github.com/akinalp/agora/pkg/validate"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/ws"
)

// mentionRegex finds @username tokens. False positives such as the host of
// an email address are dropped by the username lookup.
var mentionRegex = regexp.MustCompile(`@(\w+)`)

// ForumService is the minimal Q&A write path. Each operation stores its row
// and records the matching ledger event in the same transaction, so a failed
// ledger write undoes the post and a failed post leaves no ledger rows.
type ForumService interface {
	AskQuestion(ctx context.Context, authorID string, req *models.CreateQuestionRequest) (*models.Question, error)
	PostAnswer(ctx context.Context, authorID, questionID string, req *models.CreateAnswerRequest) (*models.Answer, error)
	PostComment(ctx context.Context, authorID string, req *models.CreateCommentRequest) (*models.Comment, error)
	CastVote(ctx context.Context, voterID string, req *models.CastVoteRequest) (*models.Vote, error)
	// RetractVote deletes the vote row. Reputation already earned stays in
	// the ledger; re-casting the same vote is then a replay and pays nothing.
	RetractVote(ctx context.Context, voterID, voteID string) error
	AcceptAnswer(ctx context.Context, callerID, answerID string) (*models.Question, error)
	// DeleteQuestion removes the thread and every notification about it,
	// pushing notification_delete to each recipient after commit. Ledger
	// entries are history and are kept.
	DeleteQuestion(ctx context.Context, caller *models.User, questionID string) error
}

type forumService struct {
	db       *sql.DB
	stores   repository.StoreFactory
	ledger   LedgerWriter
	comments *ratelimit.CooldownLimiter
	hub      ws.Publisher
	logger   *zap.Logger
}

// NewForumService builds the Q&A write path. commentLimiter may be nil.
func NewForumService(
	db *sql.DB,
	stores repository.StoreFactory,
	ledger LedgerWriter,
	commentLimiter *ratelimit.CooldownLimiter,
	hub ws.Publisher,
	logger *zap.Logger,
) ForumService {
	return &forumService{
		db:       db,
		stores:   stores,
		ledger:   ledger,
		comments: commentLimiter,
		hub:      hub,
		logger:   logger.Named("forum"),
	}
}

func (s *forumService) AskQuestion(ctx context.Context, authorID string, req *models.CreateQuestionRequest) (*models.Question, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	q := &models.Question{
		AuthorID:    authorID,
		CommunityID: req.CommunityID,
		Title:       req.Title,
		Body:        req.Body,
	}

	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)
		q.ID = ""

		if q.CommunityID != nil {
			if _, err := store.Membership.GetCommunity(ctx, *q.CommunityID); err != nil {
				return fmt.Errorf("%w: community", err)
			}
		}
		if err := store.Forum.CreateQuestion(ctx, q); err != nil {
			return err
		}

		_, err := s.ledger.RecordEvent(ctx, tx, models.Event{
			Kind:        models.EventQuestionPosted,
			ActorID:     authorID,
			RecipientID: authorID,
			Subject:     models.SubjectRef{Type: models.SubjectQuestion, ID: q.ID},
			Payload:     models.QuestionPostedPayload{Title: q.Title},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *forumService) PostAnswer(ctx context.Context, authorID, questionID string, req *models.CreateAnswerRequest) (*models.Answer, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	a := &models.Answer{QuestionID: questionID, AuthorID: authorID, Body: req.Body}

	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)
		a.ID = ""

		q, err := store.Forum.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if err := store.Forum.CreateAnswer(ctx, a); err != nil {
			return err
		}

		_, err = s.ledger.RecordEvent(ctx, tx, models.Event{
			Kind:        models.EventAnswerPosted,
			ActorID:     authorID,
			RecipientID: q.AuthorID,
			Subject:     models.SubjectRef{Type: models.SubjectAnswer, ID: a.ID},
			Payload: models.AnswerPostedPayload{
				QuestionID:    q.ID,
				QuestionTitle: q.Title,
				Snippet:       snippet(a.Body),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *forumService) PostComment(ctx context.Context, authorID string, req *models.CreateCommentRequest) (*models.Comment, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if s.comments != nil && !s.comments.Allow(authorID) {
		return nil, fmt.Errorf("%w: %s", pkg.ErrRateLimited,
			ratelimit.FormatRetryMessage(s.comments.CooldownSeconds(authorID)))
	}

	c := &models.Comment{
		ParentType: req.ParentType,
		ParentID:   req.ParentID,
		AuthorID:   authorID,
		Body:       req.Body,
	}

	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)
		c.ID = ""

		parentAuthor, questionID, err := s.resolveParent(ctx, store, c.ParentType, c.ParentID)
		if err != nil {
			return err
		}
		if err := store.Forum.CreateComment(ctx, c); err != nil {
			return err
		}

		subject := models.SubjectRef{Type: models.SubjectComment, ID: c.ID}
		if _, err := s.ledger.RecordEvent(ctx, tx, models.Event{
			Kind:        models.EventCommentPosted,
			ActorID:     authorID,
			RecipientID: parentAuthor,
			Subject:     subject,
			Payload:     models.CommentPostedPayload{QuestionID: questionID, Snippet: snippet(c.Body)},
		}); err != nil {
			return err
		}

		mentioned, err := s.resolveMentions(ctx, store, c.Body)
		if err != nil {
			return err
		}
		for _, userID := range mentioned {
			// the parent author already got the comment notification
			if userID == parentAuthor {
				continue
			}
			if _, err := s.ledger.RecordEvent(ctx, tx, models.Event{
				Kind:        models.EventMention,
				ActorID:     authorID,
				RecipientID: userID,
				Subject:     subject,
				Payload:     models.MentionPayload{QuestionID: questionID, Snippet: snippet(c.Body)},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// resolveParent returns the author of a comment's parent and the question the
// thread belongs to.
func (s *forumService) resolveParent(ctx context.Context, store *repository.Store, parentType models.SubjectType, parentID string) (string, string, error) {
	switch parentType {
	case models.SubjectQuestion:
		q, err := store.Forum.GetQuestion(ctx, parentID)
		if err != nil {
			return "", "", err
		}
		return q.AuthorID, q.ID, nil
	case models.SubjectAnswer:
		a, err := store.Forum.GetAnswer(ctx, parentID)
		if err != nil {
			return "", "", err
		}
		return a.AuthorID, a.QuestionID, nil
	default:
		return "", "", fmt.Errorf("%w: cannot comment on %s", pkg.ErrBadRequest, parentType)
	}
}

// resolveMentions maps @usernames in body to user ids, once each, in order of
// first appearance. Unknown names are ignored.
func (s *forumService) resolveMentions(ctx context.Context, store *repository.Store, body string) ([]string, error) {
	matches := mentionRegex.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(matches))
	var ids []string
	for _, m := range matches {
		name := strings.ToLower(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true

		user, err := store.Users.GetByUsername(ctx, m[1])
		if errors.Is(err, pkg.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, user.ID)
	}
	return ids, nil
}

func (s *forumService) CastVote(ctx context.Context, voterID string, req *models.CastVoteRequest) (*models.Vote, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	v := &models.Vote{
		VoterID:    voterID,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Direction:  req.Direction,
	}

	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)
		v.ID = ""

		ev, err := s.voteEvent(ctx, store, voterID, req)
		if err != nil {
			return err
		}
		if err := store.Forum.UpsertVote(ctx, v); err != nil {
			return err
		}

		_, err = s.ledger.RecordEvent(ctx, tx, ev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// voteEvent builds the ledger event for a vote and rejects self-votes.
func (s *forumService) voteEvent(ctx context.Context, store *repository.Store, voterID string, req *models.CastVoteRequest) (models.Event, error) {
	ev := models.Event{
		ActorID: voterID,
		Subject: models.SubjectRef{Type: req.TargetType, ID: req.TargetID},
	}

	switch req.TargetType {
	case models.SubjectQuestion:
		q, err := store.Forum.GetQuestion(ctx, req.TargetID)
		if err != nil {
			return ev, err
		}
		ev.RecipientID = q.AuthorID
		if req.Direction > 0 {
			ev.Kind = models.EventQuestionUpvoted
			ev.Payload = models.QuestionUpvotedPayload{QuestionTitle: q.Title}
		}
	case models.SubjectAnswer:
		a, err := store.Forum.GetAnswer(ctx, req.TargetID)
		if err != nil {
			return ev, err
		}
		q, err := store.Forum.GetQuestion(ctx, a.QuestionID)
		if err != nil {
			return ev, err
		}
		ev.RecipientID = a.AuthorID
		if req.Direction > 0 {
			ev.Kind = models.EventAnswerUpvoted
			ev.Payload = models.AnswerUpvotedPayload{QuestionID: q.ID, QuestionTitle: q.Title}
		}
	default:
		return ev, fmt.Errorf("%w: cannot vote on %s", pkg.ErrBadRequest, req.TargetType)
	}

	if ev.RecipientID == voterID {
		return ev, fmt.Errorf("%w: you cannot vote on your own post", pkg.ErrBadRequest)
	}
	if req.Direction < 0 {
		ev.Kind = models.EventDownvoted
		ev.Payload = models.DownvotedPayload{}
	}
	return ev, nil
}

func (s *forumService) RetractVote(ctx context.Context, voterID, voteID string) error {
	return database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)

		v, err := store.Forum.GetVote(ctx, voteID)
		if err != nil {
			return err
		}
		if v.VoterID != voterID {
			return fmt.Errorf("%w: vote belongs to another user", pkg.ErrForbidden)
		}
		return store.Forum.DeleteVote(ctx, voteID)
	})
}

func (s *forumService) AcceptAnswer(ctx context.Context, callerID, answerID string) (*models.Question, error) {
	var question *models.Question

	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)

		a, err := store.Forum.GetAnswer(ctx, answerID)
		if err != nil {
			return err
		}
		q, err := store.Forum.GetQuestion(ctx, a.QuestionID)
		if err != nil {
			return err
		}
		if q.AuthorID != callerID {
			return fmt.Errorf("%w: only the question author can accept an answer", pkg.ErrForbidden)
		}

		if err := store.Forum.SetAcceptedAnswer(ctx, q.ID, a.ID); err != nil {
			return err
		}
		q.AcceptedAnswerID = &a.ID
		question = q

		_, err = s.ledger.RecordEvent(ctx, tx, models.Event{
			Kind:        models.EventAnswerAccepted,
			ActorID:     callerID,
			RecipientID: a.AuthorID,
			Subject:     models.SubjectRef{Type: models.SubjectAnswer, ID: a.ID},
			Payload:     models.AnswerAcceptedPayload{QuestionID: q.ID, QuestionTitle: q.Title},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return question, nil
}

func (s *forumService) DeleteQuestion(ctx context.Context, caller *models.User, questionID string) error {
	var removed int

	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)

		q, err := store.Forum.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if q.AuthorID != caller.ID && !caller.IsPlatformAdmin() {
			return fmt.Errorf("%w: only the author can delete a question", pkg.ErrForbidden)
		}

		// Must run first: it finds answers and comments through the rows
		// DeleteQuestion removes.
		removed, err = deleteQuestionNotifications(ctx, tx, store, s.hub, questionID)
		if err != nil {
			return err
		}
		return store.Forum.DeleteQuestion(ctx, questionID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("question deleted",
		zap.String("question_id", questionID),
		zap.String("deleted_by", caller.ID),
		zap.Int("notifications_removed", removed),
	)
	return nil
}
