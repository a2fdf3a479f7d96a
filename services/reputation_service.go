package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/repository"
)

const (
	defaultLeaderboardLimit = 20
	maxLeaderboardLimit     = 100
	defaultHistoryLimit     = 50
	maxHistoryLimit         = 200
)

// ReputationService reads totals and ranks. Everything is computed from the
// ledger on each call; there is no stored counter to drift.
type ReputationService interface {
	GetTotal(ctx context.Context, userID string) (int, error)
	GetRank(ctx context.Context, userID string) (int, error)
	GetSummary(ctx context.Context, userID string) (*models.ReputationSummary, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error)
	History(ctx context.Context, userID string, limit int) ([]models.ReputationEntry, error)
	// VerifyTotals recomputes every total by aggregate query and by replaying
	// the entries one by one, and reports users where the two disagree.
	VerifyTotals(ctx context.Context) ([]models.ReputationDrift, error)
}

type reputationService struct {
	repRepo  repository.ReputationRepository
	userRepo repository.UserRepository
	// group collapses identical in-flight rank and leaderboard queries. It
	// only shares a running query; results are never kept.
	group  singleflight.Group
	logger *zap.Logger
}

// NewReputationService builds the aggregator over pool-level repositories.
func NewReputationService(repRepo repository.ReputationRepository, userRepo repository.UserRepository, logger *zap.Logger) ReputationService {
	return &reputationService{
		repRepo:  repRepo,
		userRepo: userRepo,
		logger:   logger.Named("reputation"),
	}
}

func (s *reputationService) GetTotal(ctx context.Context, userID string) (int, error) {
	exists, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: user", pkg.ErrNotFound)
	}
	return s.repRepo.Total(ctx, userID)
}

// GetRank and Leaderboard share in-flight queries between callers. The shared
// query must not die with whichever caller happened to start it, so it runs
// on a context without cancellation.
func (s *reputationService) GetRank(ctx context.Context, userID string) (int, error) {
	v, err, _ := s.group.Do("rank:"+userID, func() (any, error) {
		return s.repRepo.Rank(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *reputationService) GetSummary(ctx context.Context, userID string) (*models.ReputationSummary, error) {
	total, err := s.GetTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	rank, err := s.GetRank(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.ReputationSummary{
		UserID:       userID,
		Total:        total,
		DisplayTotal: max(total, 0),
		Rank:         rank,
	}, nil
}

func (s *reputationService) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	limit = clampLimit(limit, defaultLeaderboardLimit, maxLeaderboardLimit)
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", pkg.ErrBadRequest)
	}

	key := fmt.Sprintf("leaderboard:%d:%d", limit, offset)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.repRepo.Leaderboard(context.WithoutCancel(ctx), limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.LeaderboardEntry), nil
}

func (s *reputationService) History(ctx context.Context, userID string, limit int) ([]models.ReputationEntry, error) {
	exists, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: user", pkg.ErrNotFound)
	}
	return s.repRepo.History(ctx, userID, clampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
}

func (s *reputationService) VerifyTotals(ctx context.Context) ([]models.ReputationDrift, error) {
	aggregate, err := s.repRepo.Totals(ctx)
	if err != nil {
		return nil, err
	}

	replayed := make(map[string]int, len(aggregate))
	if err := s.repRepo.Replay(ctx, func(userID string, delta int) {
		replayed[userID] += delta
	}); err != nil {
		return nil, err
	}

	users := make(map[string]struct{}, len(aggregate))
	for id := range aggregate {
		users[id] = struct{}{}
	}
	for id := range replayed {
		users[id] = struct{}{}
	}

	var drift []models.ReputationDrift
	for id := range users {
		if aggregate[id] != replayed[id] {
			drift = append(drift, models.ReputationDrift{
				UserID:    id,
				Aggregate: aggregate[id],
				Replayed:  replayed[id],
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].UserID < drift[j].UserID })

	s.logger.Info("reputation totals verified",
		zap.Int("users", len(users)),
		zap.Int("drifted", len(drift)),
	)
	return drift, nil
}

// clampLimit maps non-positive limits to def and caps at maxLimit.
func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
