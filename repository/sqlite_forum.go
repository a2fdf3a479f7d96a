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

type sqliteForumRepo struct {
	db database.TxQuerier
}

// NewSQLiteForumRepo builds a ForumRepository over db.
func NewSQLiteForumRepo(db database.TxQuerier) ForumRepository {
	return &sqliteForumRepo{db: db}
}

func stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if at.IsZero() {
		*at = time.Now()
	}
}

// ─── Questions ───

func (r *sqliteForumRepo) CreateQuestion(ctx context.Context, q *models.Question) error {
	stamp(&q.ID, &q.CreatedAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO questions (id, author_id, community_id, title, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.AuthorID, q.CommunityID, q.Title, q.Body, toMillis(q.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

func (r *sqliteForumRepo) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	q := &models.Question{}
	var createdAt int64

	err := r.db.QueryRowContext(ctx, `
		SELECT id, author_id, community_id, title, body, accepted_answer_id, created_at
		FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.AuthorID, &q.CommunityID, &q.Title, &q.Body, &q.AcceptedAnswerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: question", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	q.CreatedAt = fromMillis(createdAt)
	return q, nil
}

func (r *sqliteForumRepo) SetAcceptedAnswer(ctx context.Context, questionID, answerID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE questions SET accepted_answer_id = ? WHERE id = ?`, answerID, questionID)
	if err != nil {
		return fmt.Errorf("failed to accept answer: %w", err)
	}
	return requireAffected(result)
}

func (r *sqliteForumRepo) DeleteQuestion(ctx context.Context, id string) error {
	cleanup := []string{
		`DELETE FROM comments WHERE parent_type = 'answer'
		   AND parent_id IN (SELECT id FROM answers WHERE question_id = ?)`,
		`DELETE FROM votes WHERE target_type = 'answer'
		   AND target_id IN (SELECT id FROM answers WHERE question_id = ?)`,
		`DELETE FROM comments WHERE parent_type = 'question' AND parent_id = ?`,
		`DELETE FROM votes WHERE target_type = 'question' AND target_id = ?`,
	}
	for _, stmt := range cleanup {
		if _, err := r.db.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete question dependents: %w", err)
		}
	}

	// answers go with the question through ON DELETE CASCADE
	result, err := r.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return requireAffected(result)
}

// ─── Answers ───

func (r *sqliteForumRepo) CreateAnswer(ctx context.Context, a *models.Answer) error {
	stamp(&a.ID, &a.CreatedAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO answers (id, question_id, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.QuestionID, a.AuthorID, a.Body, toMillis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	return nil
}

func (r *sqliteForumRepo) GetAnswer(ctx context.Context, id string) (*models.Answer, error) {
	a := &models.Answer{}
	var createdAt int64

	err := r.db.QueryRowContext(ctx,
		`SELECT id, question_id, author_id, body, created_at FROM answers WHERE id = ?`, id,
	).Scan(&a.ID, &a.QuestionID, &a.AuthorID, &a.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: answer", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	a.CreatedAt = fromMillis(createdAt)
	return a, nil
}

// ─── Comments ───

func (r *sqliteForumRepo) CreateComment(ctx context.Context, c *models.Comment) error {
	stamp(&c.ID, &c.CreatedAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comments (id, parent_type, parent_id, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ParentType, c.ParentID, c.AuthorID, c.Body, toMillis(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// ─── Votes ───

func (r *sqliteForumRepo) UpsertVote(ctx context.Context, v *models.Vote) error {
	stamp(&v.ID, &v.CreatedAt)

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO votes (id, voter_id, target_type, target_id, direction, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (voter_id, target_type, target_id) DO UPDATE SET direction = excluded.direction
		RETURNING id`,
		v.ID, v.VoterID, v.TargetType, v.TargetID, v.Direction, toMillis(v.CreatedAt),
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to store vote: %w", err)
	}
	return nil
}

func (r *sqliteForumRepo) GetVote(ctx context.Context, id string) (*models.Vote, error) {
	v := &models.Vote{}
	var createdAt int64

	err := r.db.QueryRowContext(ctx, `
		SELECT id, voter_id, target_type, target_id, direction, created_at
		FROM votes WHERE id = ?`, id,
	).Scan(&v.ID, &v.VoterID, &v.TargetType, &v.TargetID, &v.Direction, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: vote", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}

	v.CreatedAt = fromMillis(createdAt)
	return v, nil
}

func (r *sqliteForumRepo) DeleteVote(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM votes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return requireAffected(result)
}
