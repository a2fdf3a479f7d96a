package repository

import (
	"context"

	"github.com/akinalp/agora/models"
)

// ReputationRepository is the append-only reputation ledger. Totals are always
// computed from the entries; nothing caches them.
type ReputationRepository interface {
	// Insert appends e unless an entry with the same (user, subject, reason,
	// actor) already exists. inserted is false for such a replay.
	Insert(ctx context.Context, e *models.ReputationEntry) (inserted bool, err error)
	Total(ctx context.Context, userID string) (int, error)
	// Rank is the 1-based position of userID among all users ordered by
	// total desc, account age asc, id asc. ErrNotFound for unknown users.
	Rank(ctx context.Context, userID string) (int, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error)
	History(ctx context.Context, userID string, limit int) ([]models.ReputationEntry, error)
	// Totals returns the aggregate total of every user that has entries.
	Totals(ctx context.Context) (map[string]int, error)
	// Replay calls fn for every entry in insertion order.
	Replay(ctx context.Context, fn func(userID string, delta int)) error
}
