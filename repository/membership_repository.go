package repository

import (
	"context"

	"github.com/akinalp/agora/models"
)

// MembershipRepository stores communities and their members. The
// (community_id, user_id) primary key is what makes a join idempotent.
type MembershipRepository interface {
	CreateCommunity(ctx context.Context, c *models.Community) error
	GetCommunity(ctx context.Context, id string) (*models.Community, error)
	GetMember(ctx context.Context, communityID, userID string) (*models.Membership, error)
	IsMember(ctx context.Context, communityID, userID string) (bool, error)
	// AddMember reports inserted=false when the row already existed.
	AddMember(ctx context.Context, m *models.Membership) (inserted bool, err error)
	// RemoveMember reports removed=false when there was no row.
	RemoveMember(ctx context.Context, communityID, userID string) (removed bool, err error)
	// AdjustMemberCount adds delta to the counter and returns the new value.
	AdjustMemberCount(ctx context.Context, communityID string, delta int) (int, error)
	UpdateRole(ctx context.Context, communityID, userID string, role models.MemberRole) error
	ListMembers(ctx context.Context, communityID string) ([]models.Membership, error)
}
