package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/pkg/ratelimit"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/ws"
)

func ask(t *testing.T, svc ForumService, author *models.User) *models.Question {
	t.Helper()
	q, err := svc.AskQuestion(context.Background(), author.ID, &models.CreateQuestionRequest{
		Title: "How do channels close?",
		Body:  "Asking for a friend.",
	})
	require.NoError(t, err)
	return q
}

func answer(t *testing.T, svc ForumService, author *models.User, q *models.Question) *models.Answer {
	t.Helper()
	a, err := svc.PostAnswer(context.Background(), author.ID, q.ID, &models.CreateAnswerRequest{Body: "With close(ch)."})
	require.NoError(t, err)
	return a
}

func TestAskQuestionCreditsAuthor(t *testing.T) {
	env := newTestEnv(t)
	svc := env.forum()
	alice := env.user(t, "alice")

	q := ask(t, svc, alice)
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, 5, env.total(t, alice.ID))
	assert.Empty(t, env.notifications(t, alice.ID))

	_, err := svc.AskQuestion(context.Background(), alice.ID, &models.CreateQuestionRequest{Title: "hi", Body: "x"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	missing := "nope"
	_, err = svc.AskQuestion(context.Background(), alice.ID, &models.CreateQuestionRequest{
		Title: "In a community", Body: "x", CommunityID: &missing,
	})
	assert.ErrorIs(t, err, pkg.ErrNotFound)
	assert.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM questions`))
}

func TestPostAnswerNotifiesQuestionAuthor(t *testing.T) {
	env := newTestEnv(t)
	svc := env.forum()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	q := ask(t, svc, alice)
	a := answer(t, svc, bob, q)

	list := env.notifications(t, alice.ID)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationAnswer, list[0].Type)
	assert.Equal(t, a.ID, list[0].SubjectID)
	assert.Equal(t, bob.ID, list[0].ActorID)

	// answering your own question is silent
	answer(t, svc, alice, q)
	assert.Len(t, env.notifications(t, alice.ID), 1)

	_, err := svc.PostAnswer(context.Background(), bob.ID, "missing", &models.CreateAnswerRequest{Body: "x"})
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestPostCommentWithMentions(t *testing.T) {
	env := newTestEnv(t)
	svc := env.forum()
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")

	q := ask(t, svc, alice)
	c, err := svc.PostComment(ctx, bob.ID, &models.CreateCommentRequest{
		ParentType: models.SubjectQuestion,
		ParentID:   q.ID,
		Body:       "@carol see this, @alice too. @Carol @ghost",
	})
	require.NoError(t, err)

	aliceList := env.notifications(t, alice.ID)
	require.Len(t, aliceList, 1)
	assert.Equal(t, models.NotificationComment, aliceList[0].Type)

	carolList := env.notifications(t, carol.ID)
	require.Len(t, carolList, 1)
	assert.Equal(t, models.NotificationMention, carolList[0].Type)
	assert.Equal(t, c.ID, carolList[0].SubjectID)

	assert.Empty(t, env.notifications(t, bob.ID))

	_, err = svc.PostComment(ctx, bob.ID, &models.CreateCommentRequest{
		ParentType: models.SubjectComment, ParentID: c.ID, Body: "nested",
	})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestRepeatedPostsInThreadCollapse(t *testing.T) {
	env := newTestEnv(t)
	svc := env.forum()
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")

	q := ask(t, svc, alice)
	env.hub.reset()

	answer(t, svc, bob, q)
	answer(t, svc, bob, q)
	for range 2 {
		_, err := svc.PostComment(ctx, bob.ID, &models.CreateCommentRequest{
			ParentType: models.SubjectQuestion, ParentID: q.ID, Body: "same thing again @carol",
		})
		require.NoError(t, err)
	}

	list := env.notifications(t, alice.ID)
	require.Len(t, list, 2)
	for _, n := range list {
		assert.Equal(t, q.ID, n.ThreadID)
	}
	assert.Equal(t, []string{ws.OpNotificationCreate, ws.OpNotificationCreate}, env.hub.ops(alice.ID))
	assert.Len(t, env.notifications(t, carol.ID), 1)
	assert.Equal(t, 2, env.count(t, `SELECT COUNT(*) FROM answers`))
	assert.Equal(t, 2, env.count(t, `SELECT COUNT(*) FROM comments`))

	// a different actor in the thread is news
	answer(t, svc, carol, q)
	assert.Len(t, env.notifications(t, alice.ID), 3)

	// so is the same actor once the window has passed
	env.clock.advance(DefaultDedupWindow + time.Second)
	answer(t, svc, bob, q)
	assert.Len(t, env.notifications(t, alice.ID), 4)

	// and the same actor in another thread
	other := ask(t, svc, alice)
	answer(t, svc, bob, other)
	assert.Len(t, env.notifications(t, alice.ID), 5)
}

func TestCommentRateLimit(t *testing.T) {
	env := newTestEnv(t)
	limiter := ratelimit.NewCooldownLimiter(1, time.Minute, time.Minute)
	t.Cleanup(limiter.Close)
	svc := NewForumService(env.db.Conn, repository.NewSQLiteStore, env.ledger, limiter, env.hub, env.logger)

	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	q := ask(t, svc, alice)

	req := &models.CreateCommentRequest{ParentType: models.SubjectQuestion, ParentID: q.ID, Body: "first"}
	_, err := svc.PostComment(context.Background(), bob.ID, req)
	require.NoError(t, err)

	_, err = svc.PostComment(context.Background(), bob.ID, req)
	assert.ErrorIs(t, err, pkg.ErrRateLimited)
	assert.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM comments`))
}

func TestVotes(t *testing.T) {
	env := newTestEnv(t)
	svc := env.forum()
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	q := ask(t, svc, alice)
	a := answer(t, svc, bob, q)

	t.Run("self vote", func(t *testing.T) {
		_, err := svc.CastVote(ctx, bob.ID, &models.CastVoteRequest{
			TargetType: models.SubjectAnswer, TargetID: a.ID, Direction: 1,
		})
		assert.ErrorIs(t, err, pkg.ErrBadRequest)
		assert.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM votes`))
	})

	t.Run("upvote answer", func(t *testing.T) {
		v, err := svc.CastVote(ctx, alice.ID, &models.CastVoteRequest{
			TargetType: models.SubjectAnswer, TargetID: a.ID, Direction: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, 10, env.total(t, bob.ID))

		list := env.notifications(t, bob.ID)
		require.Len(t, list, 1)
		assert.Equal(t, models.NotificationVote, list[0].Type)

		// retract then recast: the entry is history, the recast is a replay
		require.NoError(t, svc.RetractVote(ctx, alice.ID, v.ID))
		assert.Equal(t, 10, env.total(t, bob.ID))

		_, err = svc.CastVote(ctx, alice.ID, &models.CastVoteRequest{
			TargetType: models.SubjectAnswer, TargetID: a.ID, Direction: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, 10, env.total(t, bob.ID))
		assert.Len(t, env.notifications(t, bob.ID), 1)
	})

	t.Run("downvote question", func(t *testing.T) {
		_, err := svc.CastVote(ctx, bob.ID, &models.CastVoteRequest{
			TargetType: models.SubjectQuestion, TargetID: q.ID, Direction: -1,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, env.total(t, alice.ID))
		// only bob's answer notification; downvotes are silent
		assert.Len(t, env.notifications(t, alice.ID), 1)
	})

	t.Run("retract someone else's vote", func(t *testing.T) {
		v, err := svc.CastVote(ctx, alice.ID, &models.CastVoteRequest{
			TargetType: models.SubjectAnswer, TargetID: a.ID, Direction: -1,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, svc.RetractVote(ctx, bob.ID, v.ID), pkg.ErrForbidden)
		assert.ErrorIs(t, svc.RetractVote(ctx, alice.ID, "missing"), pkg.ErrNotFound)
	})

	t.Run("bad direction", func(t *testing.T) {
		_, err := svc.CastVote(ctx, alice.ID, &models.CastVoteRequest{
			TargetType: models.SubjectAnswer, TargetID: a.ID, Direction: 2,
		})
		assert.ErrorIs(t, err, pkg.ErrBadRequest)
	})
}

func TestAcceptAnswer(t *testing.T) {
	env := newTestEnv(t)
	svc := env.forum()
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	q := ask(t, svc, alice)
	a := answer(t, svc, bob, q)

	_, err := svc.AcceptAnswer(ctx, bob.ID, a.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	accepted, err := svc.AcceptAnswer(ctx, alice.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, accepted.AcceptedAnswerID)
	assert.Equal(t, a.ID, *accepted.AcceptedAnswerID)
	assert.Equal(t, 15, env.total(t, bob.ID))

	// accepting again is a replay
	_, err = svc.AcceptAnswer(ctx, alice.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, env.total(t, bob.ID))
}

func TestDeleteQuestion(t *testing.T) {
	env := newTestEnv(t)
	svc := env.forum()
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")

	q := ask(t, svc, alice)
	a := answer(t, svc, bob, q)
	_, err := svc.PostComment(ctx, carol.ID, &models.CreateCommentRequest{
		ParentType: models.SubjectAnswer, ParentID: a.ID, Body: "nice @alice",
	})
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, alice.ID, &models.CastVoteRequest{
		TargetType: models.SubjectAnswer, TargetID: a.ID, Direction: 1,
	})
	require.NoError(t, err)

	// other threads keep their notifications
	other := ask(t, svc, carol)
	answer(t, svc, bob, other)

	require.NotEmpty(t, env.notifications(t, alice.ID))
	require.NotEmpty(t, env.notifications(t, bob.ID))
	entries := env.count(t, `SELECT COUNT(*) FROM reputation_entries`)

	env.hub.reset()
	assert.ErrorIs(t, svc.DeleteQuestion(ctx, bob, q.ID), pkg.ErrForbidden)
	assert.Empty(t, env.hub.ops(alice.ID), "nothing pushed for a rejected delete")

	require.NoError(t, svc.DeleteQuestion(ctx, alice, q.ID))

	assert.Empty(t, env.notifications(t, alice.ID))
	assert.Empty(t, env.notifications(t, bob.ID))
	assert.Len(t, env.notifications(t, carol.ID), 1)

	// answer and mention for alice, comment and vote for bob
	assert.Equal(t, []string{ws.OpNotificationDelete, ws.OpNotificationDelete}, env.hub.ops(alice.ID))
	assert.Equal(t, []string{ws.OpNotificationDelete, ws.OpNotificationDelete}, env.hub.ops(bob.ID))
	assert.Empty(t, env.hub.ops(carol.ID))
	assert.Equal(t, entries, env.count(t, `SELECT COUNT(*) FROM reputation_entries`))
	assert.Equal(t, 10, env.total(t, bob.ID))

	assert.ErrorIs(t, svc.DeleteQuestion(ctx, alice, q.ID), pkg.ErrNotFound)

	admin := env.admin(t, "root")
	require.NoError(t, svc.DeleteQuestion(ctx, admin, other.ID))
}
