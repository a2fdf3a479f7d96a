package syncagent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/ws"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeServer serves the notification API from memory and, when acceptWS is
// set, hands every accepted websocket to the test through conns.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	acceptWS atomic.Bool
	polls    atomic.Int32
	conns    chan *websocket.Conn
	// staleReady, when set, replaces the unread count sent in ready.
	staleReady atomic.Pointer[int]

	mu            sync.Mutex
	notifications []models.Notification
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{t: t, conns: make(chan *websocket.Conn, 4)}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/notifications", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		f.polls.Add(1)
		pkg.JSON(w, http.StatusOK, f.page())
	})
	mux.HandleFunc("POST /api/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		already := f.markRead(r.PathValue("id"))
		pkg.JSON(w, http.StatusOK, models.MarkReadResult{AlreadyRead: already})
	})
	mux.HandleFunc("POST /api/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		f.mu.Lock()
		for i := range f.notifications {
			f.notifications[i].IsRead = true
		}
		f.mu.Unlock()
		pkg.JSON(w, http.StatusOK, models.MarkAllReadResult{})
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if !f.acceptWS.Load() || r.Header.Get("Authorization") != "Bearer tok" {
			pkg.ErrorWithMessage(w, http.StatusServiceUnavailable, "no websocket")
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		unread := f.page().UnreadCount
		ready := ws.ReadyData{SessionID: "s1", UnreadCount: &unread}
		if stale := f.staleReady.Load(); stale != nil {
			ready.UnreadCount = stale
		}
		_ = conn.WriteJSON(ws.Event{Op: ws.OpReady, Data: ready})
		f.conns <- conn
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer tok" {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid token")
		return false
	}
	return true
}

func (f *fakeServer) add(id string, read bool) models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := models.Notification{
		ID:        id,
		Type:      models.NotificationAnswer,
		Title:     "New answer",
		IsRead:    read,
		CreatedAt: time.Now(),
	}
	f.notifications = append(f.notifications, n)
	return n
}

func (f *fakeServer) page() models.NotificationPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := models.NotificationPage{Notifications: append([]models.Notification(nil), f.notifications...)}
	for _, n := range f.notifications {
		if !n.IsRead {
			page.UnreadCount++
		}
	}
	return page
}

func (f *fakeServer) markRead(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			already := f.notifications[i].IsRead
			f.notifications[i].IsRead = true
			return already
		}
	}
	return false
}

func (f *fakeServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(waitFor):
		t.Fatal("agent never connected")
		return nil
	}
}

type increases struct {
	mu    sync.Mutex
	calls [][2]int
}

func (i *increases) record(delta, unread int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, [2]int{delta, unread})
}

func (i *increases) get() [][2]int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([][2]int(nil), i.calls...)
}

func newAgent(t *testing.T, f *fakeServer, inc *increases, mutate func(*Config)) *Agent {
	t.Helper()
	cfg := Config{
		BaseURL:           f.srv.URL,
		Token:             "tok",
		PollInterval:      20 * time.Millisecond,
		HeartbeatInterval: time.Second,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		Logger:            zaptest.NewLogger(t),
	}
	if inc != nil {
		cfg.OnUnreadIncrease = inc.record
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Token: "tok"})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "http://x"})
	assert.Error(t, err)

	a, err := New(Config{BaseURL: "https://forum.example/", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "wss://forum.example/ws", a.cfg.WSURL)
	assert.Equal(t, DefaultPollInterval, a.cfg.PollInterval)
}

func TestPollingFallback(t *testing.T) {
	f := newFakeServer(t)
	f.add("n1", false)
	f.add("n2", false)
	f.add("n0", true)

	inc := &increases{}
	a := newAgent(t, f, inc, nil)
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool { return a.UnreadCount() == 2 }, waitFor, tick)
	assert.NotEqual(t, StateConnected, a.State())
	assert.Len(t, a.Notifications(), 3)
	assert.Equal(t, [][2]int{{2, 2}}, inc.get())

	// later polls see the new one and fire once more
	f.add("n3", false)
	require.Eventually(t, func() bool { return a.UnreadCount() == 3 }, waitFor, tick)
	require.Eventually(t, func() bool { return f.polls.Load() > 3 }, waitFor, tick)
	assert.Equal(t, [][2]int{{2, 2}, {1, 3}}, inc.get())
}

func TestWebsocketPushes(t *testing.T) {
	f := newFakeServer(t)
	f.acceptWS.Store(true)
	f.add("old", false)

	inc := &increases{}
	a := newAgent(t, f, inc, func(c *Config) { c.PollInterval = time.Hour })
	require.NoError(t, a.Start(context.Background()))

	conn := f.nextConn(t)
	require.Eventually(t, func() bool { return a.State() == StateConnected }, waitFor, tick)
	require.Eventually(t, func() bool { return a.UnreadCount() == 1 }, waitFor, tick)

	n := models.Notification{ID: "fresh", Type: models.NotificationVote, CreatedAt: time.Now()}
	push := ws.Event{Op: ws.OpNotificationCreate, Data: ws.NotificationCreateData{Notification: n}}
	require.NoError(t, conn.WriteJSON(push))
	require.Eventually(t, func() bool { return a.UnreadCount() == 2 }, waitFor, tick)

	// the same notification again is a duplicate
	require.NoError(t, conn.WriteJSON(push))
	require.NoError(t, conn.WriteJSON(ws.Event{Op: ws.OpNotificationRead, Data: ws.NotificationReadData{ID: "fresh"}}))
	require.Eventually(t, func() bool { return a.UnreadCount() == 1 }, waitFor, tick)

	list := a.Notifications()
	require.Len(t, list, 2)
	assert.Equal(t, "fresh", list[0].ID)
	assert.True(t, list[0].IsRead)

	require.NoError(t, conn.WriteJSON(ws.Event{Op: ws.OpNotificationDelete, Data: ws.NotificationDeleteData{ID: "old"}}))
	require.Eventually(t, func() bool { return a.UnreadCount() == 0 && len(a.Notifications()) == 1 }, waitFor, tick)

	assert.Equal(t, [][2]int{{1, 1}, {1, 2}}, inc.get())
}

func TestUnhandledOpsReachOnEvent(t *testing.T) {
	f := newFakeServer(t)
	f.acceptWS.Store(true)

	got := make(chan string, 1)
	a := newAgent(t, f, nil, func(c *Config) {
		c.OnEvent = func(op string, data []byte) { got <- op + " " + string(data) }
	})
	require.NoError(t, a.Start(context.Background()))

	conn := f.nextConn(t)
	require.NoError(t, conn.WriteJSON(ws.Event{
		Op:   ws.OpReputationUpdate,
		Data: ws.ReputationUpdateData{Delta: 10, Reason: models.ReasonAnswerUpvoted, Total: 10},
	}))

	select {
	case msg := <-got:
		assert.Equal(t, `reputation_update {"delta":10,"reason":"answer_upvoted","total":10}`, msg)
	case <-time.After(waitFor):
		t.Fatal("event not delivered")
	}
}

// marker sends a frame the agent hands to OnEvent. Frames are handled in
// order, so once it arrives everything written before it has been applied.
func marker(t *testing.T, conn *websocket.Conn, events <-chan string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ws.Event{Op: ws.OpMembershipUpdate, Data: ws.MembershipUpdateData{CommunityID: "c"}}))
	select {
	case <-events:
	case <-time.After(waitFor):
		t.Fatal("marker frame not handled")
	}
}

func TestStaleReadyDoesNotOverrideReconcilePoll(t *testing.T) {
	f := newFakeServer(t)
	f.acceptWS.Store(true)
	x := f.add("x", false)
	zero := 0
	f.staleReady.Store(&zero)

	events := make(chan string, 4)
	a := newAgent(t, f, nil, func(c *Config) {
		c.PollInterval = time.Hour
		c.OnEvent = func(op string, _ []byte) { events <- op }
	})
	require.NoError(t, a.Start(context.Background()))

	conn := f.nextConn(t)
	require.NoError(t, conn.WriteJSON(ws.Event{
		Op:   ws.OpNotificationCreate,
		Data: ws.NotificationCreateData{Notification: x},
	}))
	marker(t, conn, events)

	assert.Equal(t, StateConnected, a.State())
	assert.Equal(t, 1, a.UnreadCount())
	assert.Len(t, a.Notifications(), 1)
}

func TestReadyWithoutCountKeepsLocalCount(t *testing.T) {
	a, err := New(Config{BaseURL: "http://x", Token: "tok"})
	require.NoError(t, err)

	a.mergeBatch([]models.Notification{{ID: "n1"}, {ID: "n2"}}, 0, false)
	require.Equal(t, 2, a.UnreadCount())

	a.handleFrame([]byte(`{"op":"ready","d":{"session_id":"s","user_id":"u"}}`))
	assert.Equal(t, 2, a.UnreadCount())

	a.handleFrame([]byte(`{"op":"ready","d":{"session_id":"s","user_id":"u","unread_count":5}}`))
	assert.Equal(t, 5, a.UnreadCount())
}

func TestReconnectAfterDrop(t *testing.T) {
	f := newFakeServer(t)
	f.acceptWS.Store(true)

	var mu sync.Mutex
	var states []State
	a := newAgent(t, f, nil, func(c *Config) {
		c.PollInterval = time.Hour
		c.OnStateChange = func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}
	})
	require.NoError(t, a.Start(context.Background()))

	first := f.nextConn(t)
	require.Eventually(t, func() bool { return a.State() == StateConnected }, waitFor, tick)

	// server side drop; meanwhile something arrives that only a poll sees
	f.add("missed", false)
	require.NoError(t, first.Close())

	f.nextConn(t)
	require.Eventually(t, func() bool { return a.UnreadCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && states[len(states)-1] == StateConnected
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StatePolling)
	assert.Equal(t, 2, count(states, StateConnected))
}

func count(states []State, want State) int {
	n := 0
	for _, s := range states {
		if s == want {
			n++
		}
	}
	return n
}

func TestMarkReadCalls(t *testing.T) {
	f := newFakeServer(t)
	f.add("a", false)
	f.add("b", false)
	f.add("c", false)

	a := newAgent(t, f, nil, func(c *Config) { c.PollInterval = time.Hour })
	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool { return a.UnreadCount() == 3 }, waitFor, tick)

	require.NoError(t, a.MarkRead(context.Background(), "a"))
	assert.Equal(t, 2, a.UnreadCount())

	// already read on the server: nothing changes twice
	require.NoError(t, a.MarkRead(context.Background(), "a"))
	assert.Equal(t, 2, a.UnreadCount())

	require.NoError(t, a.MarkAllRead(context.Background()))
	assert.Equal(t, 0, a.UnreadCount())
	for _, n := range a.Notifications() {
		assert.True(t, n.IsRead)
	}

	bad, err := New(Config{BaseURL: f.srv.URL, Token: "wrong"})
	require.NoError(t, err)
	err = bad.MarkAllRead(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestMergeNeverUnreads(t *testing.T) {
	a, err := New(Config{BaseURL: "http://x", Token: "tok"})
	require.NoError(t, err)

	read := models.Notification{ID: "n", IsRead: true}
	unread := models.Notification{ID: "n", IsRead: false}

	a.mergeBatch([]models.Notification{read}, 0, false)
	a.mergeBatch([]models.Notification{unread}, 0, false)
	assert.True(t, a.Notifications()[0].IsRead)
	assert.Equal(t, 0, a.UnreadCount())

	a.mergeBatch([]models.Notification{{ID: "x"}, {ID: "y"}}, 0, false)
	assert.Equal(t, 2, a.UnreadCount())

	// read reported before the notification itself arrived
	a.applyRead("late", true)
	assert.Equal(t, 1, a.UnreadCount())
	a.mergeBatch([]models.Notification{{ID: "late"}}, 0, false)
	assert.Equal(t, 1, a.UnreadCount())
	a.applyRead("late", true)
	assert.Equal(t, 1, a.UnreadCount())

	// the server had it read already, so the counter stays
	a.applyRead("other", false)
	assert.Equal(t, 1, a.UnreadCount())
}

func TestCloseStopsEverything(t *testing.T) {
	f := newFakeServer(t)
	f.acceptWS.Store(true)

	a := newAgent(t, f, nil, nil)
	require.NoError(t, a.Start(context.Background()))
	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyStarted)
	f.nextConn(t)

	done := make(chan struct{})
	go func() {
		a.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close did not return")
	}

	polls := f.polls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, polls, f.polls.Load())

	a.Close()
	assert.ErrorIs(t, a.Start(context.Background()), ErrClosed)
}
