// Package services holds the business rules. Handlers call services, services
// call repositories, and nothing in here knows about HTTP.
//
// Writes that must be atomic with the ledger run inside database.WithTx and
// build their repositories over the transaction through a
// repository.StoreFactory. Realtime pushes are queued with tx.AfterCommit so
// the hub never sees uncommitted rows.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/pkg/validate"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/ws"
)

// DefaultDedupWindow is how long an identical notification is suppressed.
const DefaultDedupWindow = 30 * time.Second

// LedgerWriter turns one user action into at most one reputation entry and at
// most one notification.
//
// RecordEvent only accepts a running transaction: the ledger rows commit or
// roll back together with the write that caused them.
type LedgerWriter interface {
	RecordEvent(ctx context.Context, tx *database.Tx, ev models.Event) (*models.RecordResult, error)
}

// ledgerRule says what an event kind produces.
type ledgerRule struct {
	reason       models.ReputationReason
	notification models.NotificationType
	// creditsActor marks events where the actor earns the points for their
	// own action. The recipient of such events must be the actor.
	creditsActor bool
	// alwaysNew skips the recency dedup. Used where two events on the same
	// subject carry different content, such as promote then demote.
	alwaysNew bool
	// dedupByThread widens the dedup key from the subject to the question
	// thread, so a burst of answers or comments from one actor collapses.
	dedupByThread bool
}

var ledgerRules = map[models.EventKind]ledgerRule{
	models.EventQuestionPosted:  {reason: models.ReasonQuestionPosted, creditsActor: true},
	models.EventAnswerPosted:    {notification: models.NotificationAnswer, dedupByThread: true},
	models.EventCommentPosted:   {notification: models.NotificationComment, dedupByThread: true},
	models.EventAnswerUpvoted:   {reason: models.ReasonAnswerUpvoted, notification: models.NotificationVote},
	models.EventQuestionUpvoted: {reason: models.ReasonQuestionUpvoted, notification: models.NotificationVote},
	models.EventDownvoted:       {reason: models.ReasonDownvoted},
	models.EventAnswerAccepted:  {reason: models.ReasonAnswerAccepted, notification: models.NotificationAnswer},
	models.EventMention:         {notification: models.NotificationMention, dedupByThread: true},
	models.EventCommunityJoined: {reason: models.ReasonCommunityJoined, creditsActor: true},
	models.EventRoleChanged:     {notification: models.NotificationSystem, alwaysNew: true},
	models.EventSystemMessage:   {notification: models.NotificationSystem, alwaysNew: true},
}

// LedgerOption customizes a LedgerWriter.
type LedgerOption func(*ledgerWriter)

// WithDedupWindow overrides DefaultDedupWindow. Zero disables dedup.
func WithDedupWindow(d time.Duration) LedgerOption {
	return func(w *ledgerWriter) { w.dedupWindow = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(w *ledgerWriter) { w.now = now }
}

type ledgerWriter struct {
	stores      repository.StoreFactory
	hub         ws.Publisher
	dedupWindow time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewLedgerWriter builds the writer. hub receives the post-commit pushes.
func NewLedgerWriter(stores repository.StoreFactory, hub ws.Publisher, logger *zap.Logger, opts ...LedgerOption) LedgerWriter {
	w := &ledgerWriter{
		stores:      stores,
		hub:         hub,
		dedupWindow: DefaultDedupWindow,
		now:         time.Now,
		logger:      logger.Named("ledger"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *ledgerWriter) RecordEvent(ctx context.Context, tx *database.Tx, ev models.Event) (*models.RecordResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: ledger writes need a transaction", pkg.ErrInternal)
	}

	rule, err := w.validate(ev)
	if err != nil {
		return nil, err
	}

	result := &models.RecordResult{}
	store := w.stores(tx)

	// Nobody is told about their own action, and only rules that credit the
	// actor may pay out for it.
	if ev.ActorID == ev.RecipientID && !rule.creditsActor {
		return result, nil
	}

	exists, err := store.Users.Exists(ctx, ev.RecipientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		w.logger.Debug("recipient missing, skipping",
			zap.String("kind", string(ev.Kind)),
			zap.String("recipient_id", ev.RecipientID),
		)
		result.RecipientMissing = true
		return result, nil
	}

	now := w.now()

	if rule.reason != "" {
		inserted, err := w.recordReputation(ctx, tx, store, ev, rule, now, result)
		if err != nil {
			return nil, err
		}
		if !inserted {
			// A replay of an already applied event.
			return result, nil
		}
	}

	if rule.notification != "" {
		if err := w.recordNotification(ctx, tx, store, ev, rule, now, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// validate checks the event shape before anything is written.
func (w *ledgerWriter) validate(ev models.Event) (ledgerRule, error) {
	rule, ok := ledgerRules[ev.Kind]
	if !ok {
		return ledgerRule{}, fmt.Errorf("%w: unknown event kind %q", pkg.ErrBadRequest, ev.Kind)
	}
	if ev.Payload == nil {
		return ledgerRule{}, fmt.Errorf("%w: payload is required", pkg.ErrBadRequest)
	}
	if ev.Payload.Kind() != ev.Kind {
		return ledgerRule{}, fmt.Errorf("%w: %s payload sent for %s event", pkg.ErrBadRequest, ev.Payload.Kind(), ev.Kind)
	}
	if err := validate.Struct(ev); err != nil {
		return ledgerRule{}, err
	}
	if err := validate.Struct(ev.Payload); err != nil {
		return ledgerRule{}, err
	}
	if rule.creditsActor && ev.RecipientID != ev.ActorID {
		return ledgerRule{}, fmt.Errorf("%w: %s credits the actor, recipient must be the actor", pkg.ErrBadRequest, ev.Kind)
	}
	return rule, nil
}

func (w *ledgerWriter) recordReputation(
	ctx context.Context,
	tx *database.Tx,
	store *repository.Store,
	ev models.Event,
	rule ledgerRule,
	now time.Time,
	result *models.RecordResult,
) (bool, error) {
	delta, _ := rule.reason.Delta()
	entry := &models.ReputationEntry{
		UserID:      ev.RecipientID,
		ActorID:     ev.ActorID,
		Delta:       delta,
		Reason:      rule.reason,
		SubjectType: ev.Subject.Type,
		SubjectID:   ev.Subject.ID,
		CreatedAt:   now,
	}

	inserted, err := store.Reputation.Insert(ctx, entry)
	if err != nil {
		return false, err
	}
	if !inserted {
		result.ReputationDuplicate = true
		w.logger.Debug("duplicate reputation entry ignored",
			zap.String("user_id", entry.UserID),
			zap.String("reason", string(entry.Reason)),
			zap.String("subject_id", entry.SubjectID),
		)
		return false, nil
	}
	result.ReputationEntryID = entry.ID

	total, err := store.Reputation.Total(ctx, entry.UserID)
	if err != nil {
		return false, err
	}

	tx.AfterCommit(func() {
		w.hub.PushToUser(entry.UserID, ws.Event{
			Op: ws.OpReputationUpdate,
			Data: ws.ReputationUpdateData{
				Delta:  entry.Delta,
				Reason: entry.Reason,
				Total:  total,
			},
		})
	})
	return true, nil
}

func (w *ledgerWriter) recordNotification(
	ctx context.Context,
	tx *database.Tx,
	store *repository.Store,
	ev models.Event,
	rule ledgerRule,
	now time.Time,
	result *models.RecordResult,
) error {
	var threadID string
	if threaded, ok := ev.Payload.(models.Threaded); ok {
		threadID = threaded.ThreadID()
	}

	if w.dedupWindow > 0 && !rule.alwaysNew {
		key := repository.DuplicateKey{
			RecipientID: ev.RecipientID,
			ActorID:     ev.ActorID,
			Type:        rule.notification,
			SubjectType: ev.Subject.Type,
			SubjectID:   ev.Subject.ID,
		}
		if rule.dedupByThread {
			key.ThreadID = threadID
		}
		existing, err := store.Notifications.FindRecent(ctx, key, now.Add(-w.dedupWindow))
		if err != nil {
			return err
		}
		if existing != "" {
			result.NotificationID = existing
			result.NotificationDeduplicated = true
			return nil
		}
	}

	actorName := ev.ActorID
	actor, err := store.Users.GetByID(ctx, ev.ActorID)
	switch {
	case err == nil:
		actorName = actor.Username
	case !errors.Is(err, pkg.ErrNotFound):
		return err
	}

	content := renderNotification(ev, actorName)
	n := &models.Notification{
		RecipientID: ev.RecipientID,
		ActorID:     ev.ActorID,
		Type:        rule.notification,
		SubjectType: ev.Subject.Type,
		SubjectID:   ev.Subject.ID,
		ThreadID:    threadID,
		Title:       content.title,
		Message:     content.message,
		Link:        content.link,
		CreatedAt:   now,
	}
	if err := store.Notifications.Create(ctx, n); err != nil {
		return err
	}
	result.NotificationID = n.ID

	tx.AfterCommit(func() {
		w.hub.PushToUser(n.RecipientID, ws.Event{
			Op:   ws.OpNotificationCreate,
			Data: ws.NotificationCreateData{Notification: *n},
		})
	})
	return nil
}
