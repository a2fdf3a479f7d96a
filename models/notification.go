package models

import "time"

// NotificationType is the closed set of notification categories.
type NotificationType string

const (
	NotificationAnswer    NotificationType = "answer"
	NotificationComment   NotificationType = "comment"
	NotificationVote      NotificationType = "vote"
	NotificationMention   NotificationType = "mention"
	NotificationSystem    NotificationType = "system"
	NotificationBroadcast NotificationType = "broadcast"
)

// Notification is immutable once written except for IsRead, which only ever
// moves from false to true. ThreadID holds the question id for notifications
// about content inside a question thread.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	ActorID     string           `json:"actor_id,omitempty"`
	Type        NotificationType `json:"type"`
	SubjectType SubjectType      `json:"subject_type,omitempty"`
	SubjectID   string           `json:"subject_id,omitempty"`
	ThreadID    string           `json:"thread_id,omitempty"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Link        *string          `json:"link,omitempty"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NotificationPage is one page of a recipient's notifications, newest first.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
	// NextBefore is the cursor for the following page; empty on the last page.
	NextBefore string `json:"next_before,omitempty"`
}

// MarkReadResult is returned by a single mark-as-read.
type MarkReadResult struct {
	AlreadyRead bool `json:"already_read"`
}

// MarkAllReadResult is returned by mark-all-as-read.
type MarkAllReadResult struct {
	Marked int `json:"marked"`
}

// BroadcastRequest is a platform-admin announcement to every user.
type BroadcastRequest struct {
	Title   string  `json:"title" validate:"required,max=200"`
	Message string  `json:"message" validate:"required,max=2000"`
	Link    *string `json:"link" validate:"omitempty,max=500"`
}

// BroadcastResult reports how far a broadcast went.
type BroadcastResult struct {
	BroadcastID string `json:"broadcast_id"`
	Recipients  int    `json:"recipients"`
	// Delivered counts inbox pushes to live sessions at send time.
	Delivered int `json:"delivered"`
	// Announced counts live sessions that got the broadcast frame.
	Announced int `json:"announced"`
}
