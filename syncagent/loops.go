package syncagent

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/ws"
)

const writeWait = 10 * time.Second

// connectLoop keeps trying to hold a websocket session. Between attempts the
// agent is in StatePolling and pollLoop carries the sync.
func (a *Agent) connectLoop(ctx context.Context) {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(a.cfg.InitialBackoff),
		backoff.WithMaxInterval(a.cfg.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)

	for ctx.Err() == nil {
		a.setState(StateConnecting)

		conn, err := a.dial(ctx)
		if err != nil {
			a.setState(StatePolling)
			wait := b.NextBackOff()
			a.logger.Debug("websocket dial failed",
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		b.Reset()
		a.setState(StateConnected)
		a.runSession(ctx, conn)
		a.setState(StatePolling)
		a.requestPoll()

		if !sleep(ctx, b.NextBackOff()) {
			return
		}
	}
}

func (a *Agent) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.cfg.Token)

	conn, resp, err := a.cfg.Dialer.DialContext(ctx, a.cfg.WSURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// runSession reads frames until the socket fails or ctx ends.
//
// The server's first frame is ready, whose unread count was taken when the
// session registered. The reconcile poll runs only after that frame has been
// applied, so the fresher poll result is the one that stands. Pushes queued
// behind ready that the poll already covered merge as duplicates.
func (a *Agent) runSession(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sessCtx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() { a.heartbeatLoop(sessCtx, conn) })
	defer func() {
		cancel()
		_ = conn.Close()
		wg.Wait()
	}()

	data, ok := a.readFrame(ctx, conn)
	if !ok {
		return
	}
	a.handleFrame(data)
	a.poll(ctx)

	for {
		data, ok := a.readFrame(ctx, conn)
		if !ok {
			return
		}
		a.handleFrame(data)
	}
}

func (a *Agent) readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(3 * a.cfg.HeartbeatInterval))
	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Debug("websocket session lost", zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (a *Agent) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ws.Event{Op: ws.OpHeartbeat}); err != nil {
				// the read side notices the broken socket
				return
			}
		}
	}
}

type frame struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
}

func (a *Agent) handleFrame(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		a.logger.Debug("dropping malformed frame", zap.Error(err))
		return
	}

	switch f.Op {
	case ws.OpHeartbeatAck:
	case ws.OpReady:
		var d ws.ReadyData
		if a.decode(f, &d) && d.UnreadCount != nil {
			a.mergeBatch(nil, *d.UnreadCount, true)
		}
	case ws.OpNotificationCreate:
		var d ws.NotificationCreateData
		if a.decode(f, &d) {
			a.mergeBatch([]models.Notification{d.Notification}, 0, false)
		}
	case ws.OpNotificationRead:
		var d ws.NotificationReadData
		if a.decode(f, &d) {
			a.applyRead(d.ID, true)
		}
	case ws.OpNotificationReadAll:
		a.applyReadAll()
	case ws.OpNotificationDelete:
		var d ws.NotificationDeleteData
		if a.decode(f, &d) {
			a.applyDelete(d.ID)
		}
	default:
		if a.cfg.OnEvent != nil {
			a.cfg.OnEvent(f.Op, f.Data)
		}
	}
}

func (a *Agent) decode(f frame, dst any) bool {
	if err := json.Unmarshal(f.Data, dst); err != nil {
		a.logger.Debug("dropping frame with bad payload", zap.String("op", f.Op), zap.Error(err))
		return false
	}
	return true
}

// pollLoop polls once at start and then every PollInterval while the agent
// has no websocket session.
func (a *Agent) pollLoop(ctx context.Context) {
	if a.State() != StateConnected {
		a.poll(ctx)
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.pollNow:
		}
		if a.State() != StateConnected {
			a.poll(ctx)
		}
	}
}

func (a *Agent) requestPoll() {
	select {
	case a.pollNow <- struct{}{}:
	default:
	}
}

func (a *Agent) poll(ctx context.Context) {
	page, err := a.api.listNotifications(ctx, a.cfg.PageSize)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Debug("poll failed", zap.Error(err))
		}
		return
	}
	a.mergeBatch(page.Notifications, page.UnreadCount, true)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
