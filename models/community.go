package models

import "time"

// MemberRole is a role inside one community.
type MemberRole string

const (
	MemberRoleMember    MemberRole = "member"
	MemberRoleModerator MemberRole = "moderator"
	MemberRoleAdmin     MemberRole = "admin"
)

// Community is a group users join. MemberCount is a display counter kept in
// step with community_members by the membership service.
type Community struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatorID   string    `json:"creator_id"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership is one (community, user) row.
type Membership struct {
	CommunityID string     `json:"community_id"`
	UserID      string     `json:"user_id"`
	Role        MemberRole `json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`
}

// CreateCommunityRequest is the body of POST /api/communities.
type CreateCommunityRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

// RoleChangeRequest is the body of a promote call.
type RoleChangeRequest struct {
	Role MemberRole `json:"role" validate:"required,oneof=moderator admin"`
}

// JoinResult reports a join; AlreadyMember means nothing changed.
type JoinResult struct {
	AlreadyMember bool `json:"already_member"`
	MemberCount   int  `json:"member_count"`
}

// LeaveResult reports a leave; AlreadyLeft means nothing changed.
type LeaveResult struct {
	AlreadyLeft bool `json:"already_left"`
	MemberCount int  `json:"member_count"`
}

// RoleChangeResult reports a promote or demote; AlreadyRole means the target
// already held the requested role.
type RoleChangeResult struct {
	AlreadyRole bool       `json:"already_role"`
	Role        MemberRole `json:"role"`
}
