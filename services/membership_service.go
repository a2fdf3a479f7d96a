package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/pkg/validate"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/ws"
)

// MembershipService guards community membership. Repeated or concurrent
// calls are safe: the (community_id, user_id) primary key decides, and the
// result flags tell the caller whether anything changed.
type MembershipService interface {
	CreateCommunity(ctx context.Context, creatorID string, req *models.CreateCommunityRequest) (*models.Community, error)
	Get(ctx context.Context, communityID string) (*models.Community, error)
	Members(ctx context.Context, communityID string) ([]models.Membership, error)
	Join(ctx context.Context, communityID, userID string) (*models.JoinResult, error)
	Leave(ctx context.Context, communityID, userID string) (*models.LeaveResult, error)
	Promote(ctx context.Context, actorID, communityID, targetID string, role models.MemberRole) (*models.RoleChangeResult, error)
	Demote(ctx context.Context, actorID, communityID, targetID string) (*models.RoleChangeResult, error)
}

type membershipService struct {
	db     *sql.DB
	stores repository.StoreFactory
	repo   repository.MembershipRepository
	ledger LedgerWriter
	hub    ws.Publisher
	logger *zap.Logger
}

// NewMembershipService builds the guard.
func NewMembershipService(
	db *sql.DB,
	stores repository.StoreFactory,
	ledger LedgerWriter,
	hub ws.Publisher,
	logger *zap.Logger,
) MembershipService {
	return &membershipService{
		db:     db,
		stores: stores,
		repo:   stores(db).Membership,
		ledger: ledger,
		hub:    hub,
		logger: logger.Named("membership"),
	}
}

func (s *membershipService) CreateCommunity(ctx context.Context, creatorID string, req *models.CreateCommunityRequest) (*models.Community, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	community := &models.Community{Name: req.Name, CreatorID: creatorID}
	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		store := s.stores(tx)
		community.ID = ""
		if err := store.Membership.CreateCommunity(ctx, community); err != nil {
			return err
		}
		count, err := s.addMember(ctx, tx, store, community, creatorID, models.MemberRoleAdmin)
		if err != nil {
			return err
		}
		community.MemberCount = count
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("community created",
		zap.String("community_id", community.ID),
		zap.String("creator_id", creatorID),
	)
	return community, nil
}

func (s *membershipService) Get(ctx context.Context, communityID string) (*models.Community, error) {
	return s.repo.GetCommunity(ctx, communityID)
}

func (s *membershipService) Members(ctx context.Context, communityID string) ([]models.Membership, error) {
	if _, err := s.repo.GetCommunity(ctx, communityID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, communityID)
}

func (s *membershipService) Join(ctx context.Context, communityID, userID string) (*models.JoinResult, error) {
	community, err := s.repo.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}

	// Fast path only. The insert below is what actually decides.
	member, err := s.repo.IsMember(ctx, communityID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return &models.JoinResult{AlreadyMember: true, MemberCount: community.MemberCount}, nil
	}

	result := &models.JoinResult{}
	err = database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		*result = models.JoinResult{}
		store := s.stores(tx)

		count, err := s.addMember(ctx, tx, store, community, userID, models.MemberRoleMember)
		if err != nil {
			return err
		}
		if count < 0 {
			result.AlreadyMember = true
			current, err := store.Membership.GetCommunity(ctx, communityID)
			if err != nil {
				return err
			}
			result.MemberCount = current.MemberCount
			return nil
		}
		result.MemberCount = count
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// addMember inserts the membership, bumps the counter and credits the join,
// all inside tx. It returns -1 when the row already existed.
func (s *membershipService) addMember(
	ctx context.Context,
	tx *database.Tx,
	store *repository.Store,
	community *models.Community,
	userID string,
	role models.MemberRole,
) (int, error) {
	inserted, err := store.Membership.AddMember(ctx, &models.Membership{
		CommunityID: community.ID,
		UserID:      userID,
		Role:        role,
	})
	if err != nil {
		return 0, err
	}
	if !inserted {
		return -1, nil
	}

	count, err := store.Membership.AdjustMemberCount(ctx, community.ID, 1)
	if err != nil {
		return 0, err
	}

	if _, err := s.ledger.RecordEvent(ctx, tx, models.Event{
		Kind:        models.EventCommunityJoined,
		ActorID:     userID,
		RecipientID: userID,
		Subject:     models.SubjectRef{Type: models.SubjectCommunity, ID: community.ID},
		Payload:     models.CommunityJoinedPayload{CommunityName: community.Name},
	}); err != nil {
		return 0, err
	}

	tx.AfterCommit(func() {
		s.pushMembership(userID, community.ID, true, role, count)
	})
	return count, nil
}

func (s *membershipService) Leave(ctx context.Context, communityID, userID string) (*models.LeaveResult, error) {
	community, err := s.repo.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if community.CreatorID == userID {
		return nil, fmt.Errorf("%w: the community creator cannot leave", pkg.ErrForbidden)
	}

	result := &models.LeaveResult{}
	err = database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		*result = models.LeaveResult{}
		store := s.stores(tx)

		removed, err := store.Membership.RemoveMember(ctx, communityID, userID)
		if err != nil {
			return err
		}
		if !removed {
			current, err := store.Membership.GetCommunity(ctx, communityID)
			if err != nil {
				return err
			}
			result.AlreadyLeft = true
			result.MemberCount = current.MemberCount
			return nil
		}

		count, err := store.Membership.AdjustMemberCount(ctx, communityID, -1)
		if err != nil {
			return err
		}
		result.MemberCount = count

		tx.AfterCommit(func() {
			s.pushMembership(userID, communityID, false, "", count)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *membershipService) Promote(ctx context.Context, actorID, communityID, targetID string, role models.MemberRole) (*models.RoleChangeResult, error) {
	if err := validate.Struct(&models.RoleChangeRequest{Role: role}); err != nil {
		return nil, err
	}
	return s.changeRole(ctx, actorID, communityID, targetID, role)
}

func (s *membershipService) Demote(ctx context.Context, actorID, communityID, targetID string) (*models.RoleChangeResult, error) {
	return s.changeRole(ctx, actorID, communityID, targetID, models.MemberRoleMember)
}

func (s *membershipService) changeRole(ctx context.Context, actorID, communityID, targetID string, role models.MemberRole) (*models.RoleChangeResult, error) {
	community, err := s.repo.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, community, actorID); err != nil {
		return nil, err
	}
	if targetID == community.CreatorID && role != models.MemberRoleAdmin {
		return nil, fmt.Errorf("%w: the community creator cannot be demoted", pkg.ErrForbidden)
	}

	result := &models.RoleChangeResult{Role: role}
	err = database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		result.AlreadyRole = false
		store := s.stores(tx)

		target, err := store.Membership.GetMember(ctx, communityID, targetID)
		if errors.Is(err, pkg.ErrNotFound) {
			return fmt.Errorf("%w: target is not a member", pkg.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if target.Role == role {
			result.AlreadyRole = true
			return nil
		}

		if err := store.Membership.UpdateRole(ctx, communityID, targetID, role); err != nil {
			return err
		}

		if _, err := s.ledger.RecordEvent(ctx, tx, models.Event{
			Kind:        models.EventRoleChanged,
			ActorID:     actorID,
			RecipientID: targetID,
			Subject:     models.SubjectRef{Type: models.SubjectCommunity, ID: communityID},
			Payload:     models.RoleChangedPayload{CommunityName: community.Name, Role: role},
		}); err != nil {
			return err
		}

		count := community.MemberCount
		tx.AfterCommit(func() {
			s.pushMembership(targetID, communityID, true, role, count)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyRole {
		s.logger.Info("member role changed",
			zap.String("community_id", communityID),
			zap.String("actor_id", actorID),
			zap.String("target_id", targetID),
			zap.String("role", string(role)),
		)
	}
	return result, nil
}

// requireManager allows the creator and community admins.
func (s *membershipService) requireManager(ctx context.Context, community *models.Community, actorID string) error {
	if community.CreatorID == actorID {
		return nil
	}
	m, err := s.repo.GetMember(ctx, community.ID, actorID)
	if errors.Is(err, pkg.ErrNotFound) {
		return fmt.Errorf("%w: only community admins can change roles", pkg.ErrForbidden)
	}
	if err != nil {
		return err
	}
	if m.Role != models.MemberRoleAdmin {
		return fmt.Errorf("%w: only community admins can change roles", pkg.ErrForbidden)
	}
	return nil
}

func (s *membershipService) pushMembership(userID, communityID string, member bool, role models.MemberRole, count int) {
	s.hub.PushToUser(userID, ws.Event{
		Op: ws.OpMembershipUpdate,
		Data: ws.MembershipUpdateData{
			CommunityID: communityID,
			Member:      member,
			Role:        role,
			MemberCount: count,
		},
	})
}
