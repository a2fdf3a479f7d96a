// Package ws is the realtime side of the notification system.
//
//   - Hub: registry of live sessions, keyed by user and by session id
//   - Client: one websocket session with its read and write pumps
//   - Handler: authenticates the handshake and hands the socket to the hub
//
// Delivery is best effort and at most once. A push that finds no session, or
// a session whose buffer is full, is simply lost; clients recover missed
// notifications by listing them over HTTP.
package ws

import "github.com/akinalp/agora/models"

// Event is the wire frame in both directions.
//
// Seq is taken from one process-wide counter, so frames to a session carry
// increasing but not consecutive values.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Client → server
const (
	OpHeartbeat = "heartbeat"
)

// Server → client
const (
	OpReady               = "ready"
	OpHeartbeatAck        = "heartbeat_ack"
	OpNotificationCreate  = "notification_create"
	OpNotificationRead    = "notification_read"
	OpNotificationReadAll = "notification_read_all"
	OpNotificationDelete  = "notification_delete"
	OpReputationUpdate    = "reputation_update"
	OpMembershipUpdate    = "membership_update"
	OpBroadcast           = "broadcast"
)

// ReadyData is the first frame of every session. UnreadCount is omitted when
// the server could not load it.
type ReadyData struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	UnreadCount *int   `json:"unread_count,omitempty"`
}

// NotificationCreateData carries a freshly committed notification.
type NotificationCreateData struct {
	Notification models.Notification `json:"notification"`
}

// NotificationReadData tells the other tabs a notification was read.
type NotificationReadData struct {
	ID string `json:"id"`
}

// NotificationReadAllData tells the other tabs everything was read.
type NotificationReadAllData struct {
	Marked int `json:"marked"`
}

// NotificationDeleteData tells the other tabs a notification is gone.
type NotificationDeleteData struct {
	ID string `json:"id"`
}

// ReputationUpdateData carries the recipient's new total.
type ReputationUpdateData struct {
	Delta  int                     `json:"delta"`
	Reason models.ReputationReason `json:"reason"`
	Total  int                     `json:"total"`
}

// MembershipUpdateData reports a change of the user's own membership.
type MembershipUpdateData struct {
	CommunityID string            `json:"community_id"`
	Member      bool              `json:"member"`
	Role        models.MemberRole `json:"role,omitempty"`
	MemberCount int               `json:"member_count"`
}

// BroadcastData is the live announcement sent to every connected session when
// a platform admin broadcasts. Each recipient's inbox row arrives separately
// as notification_create.
type BroadcastData struct {
	BroadcastID string  `json:"broadcast_id"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	Link        *string `json:"link,omitempty"`
}
