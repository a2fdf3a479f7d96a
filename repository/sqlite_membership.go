package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
)

type sqliteMembershipRepo struct {
	db database.TxQuerier
}

// NewSQLiteMembershipRepo builds a MembershipRepository over db.
func NewSQLiteMembershipRepo(db database.TxQuerier) MembershipRepository {
	return &sqliteMembershipRepo{db: db}
}

// ─── Communities ───

func (r *sqliteMembershipRepo) CreateCommunity(ctx context.Context, c *models.Community) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO communities (id, name, creator_id, member_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.CreatorID, c.MemberCount, toMillis(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create community: %w", err)
	}
	return nil
}

func (r *sqliteMembershipRepo) GetCommunity(ctx context.Context, id string) (*models.Community, error) {
	c := &models.Community{}
	var createdAt int64

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id, member_count, created_at FROM communities WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.CreatorID, &c.MemberCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community: %w", err)
	}

	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *sqliteMembershipRepo) AdjustMemberCount(ctx context.Context, communityID string, delta int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		UPDATE communities SET member_count = member_count + ?
		WHERE id = ?
		RETURNING member_count`,
		delta, communityID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, pkg.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust member count: %w", err)
	}
	return count, nil
}

// ─── Members ───

func (r *sqliteMembershipRepo) GetMember(ctx context.Context, communityID, userID string) (*models.Membership, error) {
	m := &models.Membership{}
	var joinedAt int64

	err := r.db.QueryRowContext(ctx, `
		SELECT community_id, user_id, role, joined_at
		FROM community_members WHERE community_id = ? AND user_id = ?`,
		communityID, userID,
	).Scan(&m.CommunityID, &m.UserID, &m.Role, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	m.JoinedAt = fromMillis(joinedAt)
	return m, nil
}

func (r *sqliteMembershipRepo) IsMember(ctx context.Context, communityID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM community_members WHERE community_id = ? AND user_id = ?)`,
		communityID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (r *sqliteMembershipRepo) AddMember(ctx context.Context, m *models.Membership) (bool, error) {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	if m.Role == "" {
		m.Role = models.MemberRoleMember
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO community_members (community_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (community_id, user_id) DO NOTHING`,
		m.CommunityID, m.UserID, m.Role, toMillis(m.JoinedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", err)
	}

	n, err := affected(result)
	return n == 1, err
}

func (r *sqliteMembershipRepo) RemoveMember(ctx context.Context, communityID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM community_members WHERE community_id = ? AND user_id = ?`, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}

	n, err := affected(result)
	return n == 1, err
}

func (r *sqliteMembershipRepo) UpdateRole(ctx context.Context, communityID, userID string, role models.MemberRole) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE community_members SET role = ? WHERE community_id = ? AND user_id = ?`,
		role, communityID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return requireAffected(result)
}

func (r *sqliteMembershipRepo) ListMembers(ctx context.Context, communityID string) ([]models.Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT community_id, user_id, role, joined_at
		FROM community_members WHERE community_id = ?
		ORDER BY joined_at, user_id`,
		communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.Membership, 0)
	for rows.Next() {
		var m models.Membership
		var joinedAt int64
		if err := rows.Scan(&m.CommunityID, &m.UserID, &m.Role, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.JoinedAt = fromMillis(joinedAt)
		members = append(members, m)
	}
	return members, rows.Err()
}
