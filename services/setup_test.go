package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/ws"
)

type pushed struct {
	userID string
	event  ws.Event
}

// fakePublisher records pushes instead of delivering them.
type fakePublisher struct {
	mu     sync.Mutex
	pushes []pushed
	onPush func(userID string, event ws.Event)
}

func (f *fakePublisher) PushToUser(userID string, event ws.Event) int {
	f.mu.Lock()
	f.pushes = append(f.pushes, pushed{userID: userID, event: event})
	hook := f.onPush
	f.mu.Unlock()

	if hook != nil {
		hook(userID, event)
	}
	return 1
}

// PushToAll is recorded under the user id "*".
func (f *fakePublisher) PushToAll(event ws.Event) int {
	return f.PushToUser("*", event)
}

func (f *fakePublisher) PushToSession(string, ws.Event) bool { return true }

// ops lists the ops pushed to userID, in order.
func (f *fakePublisher) ops(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ops []string
	for _, p := range f.pushes {
		if p.userID == userID {
			ops = append(ops, p.event.Op)
		}
	}
	return ops
}

func (f *fakePublisher) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	db     *database.DB
	store  *repository.Store
	hub    *fakePublisher
	clock  *testClock
	ledger LedgerWriter
	logger *zap.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), database.Migrations(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t)
	hub := &fakePublisher{}
	clock := &testClock{t: time.Now()}

	return &testEnv{
		db:     db,
		store:  repository.NewSQLiteStore(db.Conn),
		hub:    hub,
		clock:  clock,
		ledger: NewLedgerWriter(repository.NewSQLiteStore, hub, logger, WithClock(clock.now)),
		logger: logger,
	}
}

func (e *testEnv) user(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username}
	require.NoError(t, e.store.Users.Create(context.Background(), u))
	return u
}

func (e *testEnv) admin(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Role: models.UserRoleAdmin}
	require.NoError(t, e.store.Users.Create(context.Background(), u))
	return u
}

// record runs a single event in its own transaction.
func (e *testEnv) record(t *testing.T, ev models.Event) (*models.RecordResult, error) {
	t.Helper()
	var result *models.RecordResult
	err := database.WithTx(context.Background(), e.db.Conn, func(tx *database.Tx) error {
		var err error
		result, err = e.ledger.RecordEvent(context.Background(), tx, ev)
		return err
	})
	return result, err
}

func (e *testEnv) total(t *testing.T, userID string) int {
	t.Helper()
	total, err := e.store.Reputation.Total(context.Background(), userID)
	require.NoError(t, err)
	return total
}

func (e *testEnv) notifications(t *testing.T, userID string) []models.Notification {
	t.Helper()
	list, err := e.store.Notifications.ListByRecipient(context.Background(), userID, 100, "")
	require.NoError(t, err)
	return list
}

func (e *testEnv) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.Conn.QueryRow(query, args...).Scan(&n))
	return n
}

func (e *testEnv) forum() ForumService {
	return NewForumService(e.db.Conn, repository.NewSQLiteStore, e.ledger, nil, e.hub, e.logger)
}

func (e *testEnv) membership() MembershipService {
	return NewMembershipService(e.db.Conn, repository.NewSQLiteStore, e.ledger, e.hub, e.logger)
}

func (e *testEnv) notificationService() NotificationService {
	return NewNotificationService(e.db.Conn, repository.NewSQLiteStore, e.hub, e.logger)
}
