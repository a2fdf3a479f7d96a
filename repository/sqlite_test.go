package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
)

func newStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "repo.db"), database.Migrations(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db.Conn), db
}

func createUser(t *testing.T, s *Store, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name}
	require.NoError(t, s.Users.Create(context.Background(), u))
	return u
}

func TestNotificationPaging(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	// identical timestamps: insertion order breaks the tie
	at := time.Now()
	var ids []string
	for range 5 {
		n := &models.Notification{RecipientID: alice.ID, Type: models.NotificationSystem, Title: "t", CreatedAt: at}
		require.NoError(t, s.Notifications.Create(ctx, n))
		ids = append(ids, n.ID)
	}
	other := &models.Notification{RecipientID: bob.ID, Type: models.NotificationSystem, Title: "t"}
	require.NoError(t, s.Notifications.Create(ctx, other))

	var seen []string
	before := ""
	for {
		page, err := s.Notifications.ListByRecipient(ctx, alice.ID, 2, before)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, n := range page {
			seen = append(seen, n.ID)
		}
		before = page[len(page)-1].ID
	}
	assert.Equal(t, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)

	_, err := s.Notifications.ListByRecipient(ctx, alice.ID, 2, "nope")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
	_, err = s.Notifications.ListByRecipient(ctx, alice.ID, 2, other.ID)
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "cursor of another recipient")
}

func TestNotificationReadIsMonotonic(t *testing.T) {
	s, db := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")

	n := &models.Notification{RecipientID: alice.ID, Type: models.NotificationSystem, Title: "t"}
	require.NoError(t, s.Notifications.Create(ctx, n))

	changed, err := s.Notifications.MarkRead(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Notifications.MarkRead(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = db.Conn.Exec(`UPDATE notifications SET is_read = 0 WHERE id = ?`, n.ID)
	assert.Error(t, err)
	_, err = db.Conn.Exec(`UPDATE notifications SET title = 'edited' WHERE id = ?`, n.ID)
	assert.Error(t, err)

	unread, err := s.Notifications.CountUnread(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	assert.ErrorIs(t, s.Notifications.Delete(ctx, "missing"), pkg.ErrNotFound)
}

func TestFindRecentRespectsWindow(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	created := time.Now().Add(-time.Minute)
	n := &models.Notification{
		RecipientID: alice.ID, ActorID: bob.ID, Type: models.NotificationComment,
		SubjectType: models.SubjectQuestion, SubjectID: "q1", Title: "t", CreatedAt: created,
	}
	require.NoError(t, s.Notifications.Create(ctx, n))

	key := DuplicateKey{
		RecipientID: alice.ID, ActorID: bob.ID, Type: models.NotificationComment,
		SubjectType: models.SubjectQuestion, SubjectID: "q1",
	}
	id, err := s.Notifications.FindRecent(ctx, key, created.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, n.ID, id)

	id, err = s.Notifications.FindRecent(ctx, key, created.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, id)

	key.ActorID = alice.ID
	id, err = s.Notifications.FindRecent(ctx, key, created.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFindRecentByThread(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	at := time.Now()
	n := &models.Notification{
		RecipientID: alice.ID, ActorID: bob.ID, Type: models.NotificationAnswer,
		SubjectType: models.SubjectAnswer, SubjectID: "a1", ThreadID: "q1", Title: "t", CreatedAt: at,
	}
	require.NoError(t, s.Notifications.Create(ctx, n))

	key := DuplicateKey{
		RecipientID: alice.ID, ActorID: bob.ID, Type: models.NotificationAnswer,
		SubjectType: models.SubjectAnswer, SubjectID: "a2", ThreadID: "q1",
	}
	id, err := s.Notifications.FindRecent(ctx, key, at.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, n.ID, id, "another answer in the same thread")

	key.ThreadID = "q2"
	id, err = s.Notifications.FindRecent(ctx, key, at.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, id)

	key.ThreadID = ""
	id, err = s.Notifications.FindRecent(ctx, key, at.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, id, "without a thread the subject must match")

	listed, err := s.Notifications.ListByQuestion(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "q1", listed[0].ThreadID)

	deleted, err := s.Notifications.DeleteByQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestReputationLedger(t *testing.T) {
	s, db := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	carol := createUser(t, s, "carol")

	entry := func(user, actor *models.User, reason models.ReputationReason, subject string) *models.ReputationEntry {
		delta, ok := reason.Delta()
		require.True(t, ok)
		return &models.ReputationEntry{
			UserID: user.ID, ActorID: actor.ID, Delta: delta, Reason: reason,
			SubjectType: models.SubjectAnswer, SubjectID: subject,
		}
	}

	inserted, err := s.Reputation.Insert(ctx, entry(alice, bob, models.ReasonAnswerUpvoted, "a1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Reputation.Insert(ctx, entry(alice, bob, models.ReasonAnswerUpvoted, "a1"))
	require.NoError(t, err)
	assert.False(t, inserted, "same key is a replay")

	inserted, err = s.Reputation.Insert(ctx, entry(alice, carol, models.ReasonAnswerUpvoted, "a1"))
	require.NoError(t, err)
	assert.True(t, inserted, "another voter pays again")

	_, err = s.Reputation.Insert(ctx, entry(bob, alice, models.ReasonDownvoted, "a2"))
	require.NoError(t, err)

	total, err := s.Reputation.Total(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, total)
	total, err = s.Reputation.Total(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, -2, total)

	rank, err := s.Reputation.Rank(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
	rank, err = s.Reputation.Rank(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rank, "carol has 0 and ranks above bob")
	_, err = s.Reputation.Rank(ctx, "ghost")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = db.Conn.Exec(`UPDATE reputation_entries SET delta = 100`)
	assert.Error(t, err, "ledger is append-only")
}

func TestMembershipPrimaryKey(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	c := &models.Community{Name: "golang", CreatorID: alice.ID}
	require.NoError(t, s.Membership.CreateCommunity(ctx, c))

	inserted, err := s.Membership.AddMember(ctx, &models.Membership{CommunityID: c.ID, UserID: bob.ID})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Membership.AddMember(ctx, &models.Membership{CommunityID: c.ID, UserID: bob.ID})
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := s.Membership.AdjustMemberCount(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.Membership.AdjustMemberCount(ctx, c.ID, -2)
	assert.Error(t, err, "count never goes negative")

	removed, err := s.Membership.RemoveMember(ctx, c.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.Membership.RemoveMember(ctx, c.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}
