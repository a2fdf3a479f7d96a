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

// rankedUsers ranks every user, including users without any entry (total 0).
const rankedUsers = `
	SELECT u.id, u.username, COALESCE(t.total, 0) AS total,
	       ROW_NUMBER() OVER (ORDER BY COALESCE(t.total, 0) DESC, u.created_at ASC, u.id ASC) AS user_rank
	FROM users u
	LEFT JOIN (
		SELECT user_id, SUM(delta) AS total FROM reputation_entries GROUP BY user_id
	) t ON t.user_id = u.id`

type sqliteReputationRepo struct {
	db database.TxQuerier
}

// NewSQLiteReputationRepo builds a ReputationRepository over db.
func NewSQLiteReputationRepo(db database.TxQuerier) ReputationRepository {
	return &sqliteReputationRepo{db: db}
}

func (r *sqliteReputationRepo) Insert(ctx context.Context, e *models.ReputationEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO reputation_entries (id, user_id, actor_id, delta, reason, subject_type, subject_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, subject_type, subject_id, reason, actor_id) DO NOTHING`,
		e.ID, e.UserID, e.ActorID, e.Delta, e.Reason, e.SubjectType, e.SubjectID, toMillis(e.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert reputation entry: %w", err)
	}

	n, err := affected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *sqliteReputationRepo) Total(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM reputation_entries WHERE user_id = ?`, userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum reputation: %w", err)
	}
	return total, nil
}

func (r *sqliteReputationRepo) Rank(ctx context.Context, userID string) (int, error) {
	var rank int
	err := r.db.QueryRowContext(ctx,
		`SELECT user_rank FROM (`+rankedUsers+`) WHERE id = ?`, userID,
	).Scan(&rank)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, pkg.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to rank user: %w", err)
	}
	return rank, nil
}

func (r *sqliteReputationRepo) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_rank, id, username, total FROM (`+rankedUsers+`) ORDER BY user_rank LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.UserID, &e.Username, &e.Total); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *sqliteReputationRepo) History(ctx context.Context, userID string, limit int) ([]models.ReputationEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, actor_id, delta, reason, subject_type, subject_id, created_at
		FROM reputation_entries
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load reputation history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.ReputationEntry, 0)
	for rows.Next() {
		var e models.ReputationEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.ActorID, &e.Delta, &e.Reason,
			&e.SubjectType, &e.SubjectID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reputation entry: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *sqliteReputationRepo) Totals(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, SUM(delta) FROM reputation_entries GROUP BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reputation: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var userID string
		var total int
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan reputation total: %w", err)
		}
		totals[userID] = total
	}
	return totals, rows.Err()
}

func (r *sqliteReputationRepo) Replay(ctx context.Context, fn func(userID string, delta int)) error {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, delta FROM reputation_entries ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("failed to read reputation ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var delta int
		if err := rows.Scan(&userID, &delta); err != nil {
			return fmt.Errorf("failed to scan reputation entry: %w", err)
		}
		fn(userID, delta)
	}
	return rows.Err()
}
