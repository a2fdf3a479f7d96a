// Package syncagent keeps a client's view of its notifications current.
//
// An Agent holds a websocket session to the server while it can and falls
// back to polling GET /api/notifications while it cannot, redialing with
// exponential backoff. Pushed and polled notifications are merged by id; a
// notification's read flag only ever goes from false to true locally.
//
//	agent, err := syncagent.New(syncagent.Config{
//		BaseURL: "https://forum.example",
//		Token:   token,
//		OnUnreadIncrease: func(delta, unread int) { badge.Set(unread) },
//	})
//	agent.Start(ctx)
//	defer agent.Close()
package syncagent

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/akinalp/agora/models"
)

const (
	DefaultPollInterval      = 30 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPageSize          = 50
)

// State is where the agent is in its connection lifecycle.
type State int

const (
	// StatePolling means no websocket; the poll loop is authoritative.
	StatePolling State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config configures an Agent. BaseURL and Token are required.
type Config struct {
	// BaseURL is the HTTP root of the server, e.g. "https://forum.example".
	BaseURL string
	// WSURL defaults to BaseURL with a ws/wss scheme and the /ws path.
	WSURL string
	Token string

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	PageSize          int

	// InitialBackoff and MaxBackoff bound the redial delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *zap.Logger

	// OnUnreadIncrease fires once per merged batch whose unread count went up.
	OnUnreadIncrease func(delta, unread int)
	// OnStateChange fires on every state transition.
	OnStateChange func(State)
	// OnEvent receives pushes the agent does not handle itself, such as
	// reputation_update and membership_update.
	OnEvent func(op string, data []byte)
}

// Agent is safe for concurrent use.
type Agent struct {
	cfg    Config
	api    *apiClient
	logger *zap.Logger

	mu            sync.Mutex
	state         State
	notifications map[string]models.Notification
	// readIDs remembers ids reported read before they were ever merged.
	readIDs map[string]bool
	unread  int
	pollNow chan struct{}

	cancel  context.CancelFunc
	wg      conc.WaitGroup
	started bool
	closed  bool
}

var (
	ErrAlreadyStarted = errors.New("sync agent already started")
	ErrClosed         = errors.New("sync agent closed")
)

// New validates cfg and builds an idle agent. Call Start to begin syncing.
func New(cfg Config) (*Agent, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("syncagent: BaseURL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("syncagent: Token is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, err
	}

	if cfg.WSURL == "" {
		ws := *base
		ws.Scheme = "ws"
		if base.Scheme == "https" {
			ws.Scheme = "wss"
		}
		ws.Path = base.Path + "/ws"
		cfg.WSURL = ws.String()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Agent{
		cfg:           cfg,
		api:           &apiClient{base: base.String(), token: cfg.Token, http: cfg.HTTPClient},
		logger:        cfg.Logger.Named("syncagent"),
		notifications: make(map[string]models.Notification),
		readIDs:       make(map[string]bool),
		pollNow:       make(chan struct{}, 1),
	}, nil
}

// Start launches the connect and poll loops. They run until ctx is done or
// Close is called.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.started {
		return ErrAlreadyStarted
	}
	a.started = true

	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Go(func() { a.connectLoop(ctx) })
	a.wg.Go(func() { a.pollLoop(ctx) })
	return nil
}

// Close stops both loops, closes the socket and waits for every goroutine
// of the agent. Nothing pending is flushed. Safe to call more than once.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread
}

// Notifications returns the merged view, newest first.
func (a *Agent) Notifications() []models.Notification {
	a.mu.Lock()
	list := make([]models.Notification, 0, len(a.notifications))
	for _, n := range a.notifications {
		list = append(list, n)
	}
	a.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// MarkRead marks one notification read on the server, then locally.
func (a *Agent) MarkRead(ctx context.Context, id string) error {
	result, err := a.api.markRead(ctx, id)
	if err != nil {
		return err
	}
	a.applyRead(id, !result.AlreadyRead)
	return nil
}

// MarkAllRead marks everything read on the server, then locally.
func (a *Agent) MarkAllRead(ctx context.Context) error {
	if _, err := a.api.markAllRead(ctx); err != nil {
		return err
	}
	a.applyReadAll()
	return nil
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	if a.state == s {
		a.mu.Unlock()
		return
	}
	a.state = s
	a.mu.Unlock()

	a.logger.Debug("state changed", zap.Stringer("state", s))
	if a.cfg.OnStateChange != nil {
		a.cfg.OnStateChange(s)
	}
}
