package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/ws"
)

// seedMentions writes n mention notifications from actor to recipient, one
// second apart, on comments in distinct threads.
func seedMentions(t *testing.T, env *testEnv, actor, recipient *models.User, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		env.clock.advance(time.Second)
		result, err := env.record(t, models.Event{
			Kind:        models.EventMention,
			ActorID:     actor.ID,
			RecipientID: recipient.ID,
			Subject:     models.SubjectRef{Type: models.SubjectComment, ID: fmt.Sprintf("c%d", i)},
			Payload:     models.MentionPayload{QuestionID: fmt.Sprintf("q%d", i), Snippet: "hi"},
		})
		require.NoError(t, err)
		ids = append(ids, result.NotificationID)
	}
	return ids
}

func TestNotificationList(t *testing.T) {
	env := newTestEnv(t)
	svc := env.notificationService()
	ctx := context.Background()

	a := env.user(t, "alice")
	b := env.user(t, "bob")
	ids := seedMentions(t, env, a, b, 5)

	page, err := svc.List(ctx, b.ID, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, ids[4], page.Notifications[0].ID)
	assert.Equal(t, ids[3], page.Notifications[1].ID)
	assert.Equal(t, 5, page.UnreadCount)
	assert.Equal(t, ids[3], page.NextBefore)

	page, err = svc.List(ctx, b.ID, 2, page.NextBefore)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, ids[2], page.Notifications[0].ID)

	page, err = svc.List(ctx, b.ID, 2, page.NextBefore)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, ids[0], page.Notifications[0].ID)
	assert.Empty(t, page.NextBefore)

	_, err = svc.List(ctx, b.ID, 2, "not-a-notification")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	page, err = svc.List(ctx, a.ID, 0, "")
	require.NoError(t, err)
	assert.Empty(t, page.Notifications)
	assert.NotNil(t, page.Notifications)
}

func TestNotificationMarkRead(t *testing.T) {
	env := newTestEnv(t)
	svc := env.notificationService()
	ctx := context.Background()

	a := env.user(t, "alice")
	b := env.user(t, "bob")
	ids := seedMentions(t, env, a, b, 2)
	env.hub.reset()

	result, err := svc.MarkRead(ctx, b.ID, ids[0])
	require.NoError(t, err)
	assert.False(t, result.AlreadyRead)
	assert.Equal(t, []string{ws.OpNotificationRead}, env.hub.ops(b.ID))

	result, err = svc.MarkRead(ctx, b.ID, ids[0])
	require.NoError(t, err)
	assert.True(t, result.AlreadyRead)
	assert.Len(t, env.hub.ops(b.ID), 1)

	count, err := svc.UnreadCount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.MarkRead(ctx, a.ID, ids[1])
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = svc.MarkRead(ctx, b.ID, "missing")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestNotificationMarkAllRead(t *testing.T) {
	env := newTestEnv(t)
	svc := env.notificationService()
	ctx := context.Background()

	a := env.user(t, "alice")
	b := env.user(t, "bob")
	seedMentions(t, env, a, b, 3)
	seedMentions(t, env, b, a, 1)
	env.hub.reset()

	result, err := svc.MarkAllRead(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Marked)
	assert.Equal(t, []string{ws.OpNotificationReadAll}, env.hub.ops(b.ID))

	page, err := svc.List(ctx, b.ID, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 0, page.UnreadCount)
	for _, n := range page.Notifications {
		assert.True(t, n.IsRead)
	}

	// other recipients are untouched
	count, err := svc.UnreadCount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err = svc.MarkAllRead(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Marked)
	assert.Len(t, env.hub.ops(b.ID), 1)
}

func TestNotificationDelete(t *testing.T) {
	env := newTestEnv(t)
	svc := env.notificationService()
	ctx := context.Background()

	a := env.user(t, "alice")
	b := env.user(t, "bob")
	ids := seedMentions(t, env, a, b, 2)
	env.hub.reset()

	assert.ErrorIs(t, svc.Delete(ctx, a.ID, ids[0]), pkg.ErrForbidden)

	require.NoError(t, svc.Delete(ctx, b.ID, ids[0]))
	assert.Equal(t, []string{ws.OpNotificationDelete}, env.hub.ops(b.ID))
	assert.ErrorIs(t, svc.Delete(ctx, b.ID, ids[0]), pkg.ErrNotFound)
	assert.Len(t, env.notifications(t, b.ID), 1)
}
