package models

// EventKind is the closed set of user actions the ledger understands.
type EventKind string

const (
	EventQuestionPosted  EventKind = "question_posted"
	EventAnswerPosted    EventKind = "answer_posted"
	EventCommentPosted   EventKind = "comment_posted"
	EventAnswerUpvoted   EventKind = "answer_upvoted"
	EventQuestionUpvoted EventKind = "question_upvoted"
	EventDownvoted       EventKind = "downvoted"
	EventAnswerAccepted  EventKind = "answer_accepted"
	EventMention         EventKind = "mention"
	EventCommunityJoined EventKind = "community_joined"
	EventRoleChanged     EventKind = "role_changed"
	EventSystemMessage   EventKind = "system_message"
)

// SubjectType names what an event is about.
type SubjectType string

const (
	SubjectQuestion  SubjectType = "question"
	SubjectAnswer    SubjectType = "answer"
	SubjectComment   SubjectType = "comment"
	SubjectCommunity SubjectType = "community"
	SubjectSystem    SubjectType = "system"
	SubjectBroadcast SubjectType = "broadcast"
)

// SubjectRef points at the content an event concerns.
type SubjectRef struct {
	Type SubjectType `validate:"required,oneof=question answer comment community system broadcast"`
	ID   string      `validate:"required,max=64"`
}

// Event is the input of the ledger writer. Payload must be the variant that
// belongs to Kind (AnswerPostedPayload for EventAnswerPosted, and so on).
type Event struct {
	Kind        EventKind `validate:"required"`
	ActorID     string    `validate:"required,max=64"`
	RecipientID string    `validate:"required,max=64"`
	Subject     SubjectRef
	Payload     EventPayload `validate:"required"`
}

// EventPayload is implemented by exactly one struct per EventKind.
type EventPayload interface {
	Kind() EventKind
}

// QuestionPostedPayload credits the author of a new question.
type QuestionPostedPayload struct {
	Title string `validate:"required,max=300"`
}

// AnswerPostedPayload notifies the question author of a new answer.
type AnswerPostedPayload struct {
	QuestionID    string `validate:"required"`
	QuestionTitle string `validate:"required,max=300"`
	Snippet       string `validate:"max=280"`
}

// CommentPostedPayload notifies the author of the commented post.
type CommentPostedPayload struct {
	QuestionID string `validate:"required"`
	Snippet    string `validate:"max=280"`
}

// AnswerUpvotedPayload credits and notifies the answer author.
type AnswerUpvotedPayload struct {
	QuestionID    string `validate:"required"`
	QuestionTitle string `validate:"required,max=300"`
}

// QuestionUpvotedPayload credits and notifies the question author.
type QuestionUpvotedPayload struct {
	QuestionTitle string `validate:"required,max=300"`
}

// DownvotedPayload debits the post author. Downvotes are not announced.
type DownvotedPayload struct{}

// AnswerAcceptedPayload credits and notifies the accepted answer's author.
type AnswerAcceptedPayload struct {
	QuestionID    string `validate:"required"`
	QuestionTitle string `validate:"required,max=300"`
}

// MentionPayload notifies a user named with @username.
type MentionPayload struct {
	QuestionID string `validate:"required"`
	Snippet    string `validate:"max=280"`
}

// CommunityJoinedPayload credits a new member.
type CommunityJoinedPayload struct {
	CommunityName string `validate:"required,max=100"`
}

// RoleChangedPayload tells a member their community role changed.
type RoleChangedPayload struct {
	CommunityName string     `validate:"required,max=100"`
	Role          MemberRole `validate:"required,oneof=member moderator admin"`
}

// SystemMessagePayload is a free-form notice from the platform.
type SystemMessagePayload struct {
	Title   string  `validate:"required,max=200"`
	Message string  `validate:"required,max=2000"`
	Link    *string `validate:"omitempty,max=500"`
}

func (QuestionPostedPayload) Kind() EventKind  { return EventQuestionPosted }
func (AnswerPostedPayload) Kind() EventKind    { return EventAnswerPosted }
func (CommentPostedPayload) Kind() EventKind   { return EventCommentPosted }
func (AnswerUpvotedPayload) Kind() EventKind   { return EventAnswerUpvoted }
func (QuestionUpvotedPayload) Kind() EventKind { return EventQuestionUpvoted }
func (DownvotedPayload) Kind() EventKind       { return EventDownvoted }
func (AnswerAcceptedPayload) Kind() EventKind  { return EventAnswerAccepted }
func (MentionPayload) Kind() EventKind         { return EventMention }
func (CommunityJoinedPayload) Kind() EventKind { return EventCommunityJoined }
func (RoleChangedPayload) Kind() EventKind     { return EventRoleChanged }
func (SystemMessagePayload) Kind() EventKind   { return EventSystemMessage }

// Threaded is implemented by payloads about content inside a question
// thread. ThreadID returns the question id.
type Threaded interface {
	ThreadID() string
}

func (p AnswerPostedPayload) ThreadID() string   { return p.QuestionID }
func (p CommentPostedPayload) ThreadID() string  { return p.QuestionID }
func (p AnswerUpvotedPayload) ThreadID() string  { return p.QuestionID }
func (p AnswerAcceptedPayload) ThreadID() string { return p.QuestionID }
func (p MentionPayload) ThreadID() string        { return p.QuestionID }

// RecordResult tells the caller what the ledger actually wrote.
type RecordResult struct {
	NotificationID    string `json:"notification_id,omitempty"`
	ReputationEntryID string `json:"reputation_entry_id,omitempty"`
	// NotificationDeduplicated is set when an identical recent notification
	// was found and reused.
	NotificationDeduplicated bool `json:"notification_deduplicated,omitempty"`
	// ReputationDuplicate is set when the entry already existed. The event is
	// then a replay and produces no new notification either.
	ReputationDuplicate bool `json:"reputation_duplicate,omitempty"`
	// RecipientMissing is set when the recipient account no longer exists.
	RecipientMissing bool `json:"recipient_missing,omitempty"`
}
