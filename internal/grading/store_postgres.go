package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-quiz/internal/content"
)

const dbTimeout = 5 * time.Second

// PostgresAttemptStore is a PostgreSQL-backed AttemptStore.
type PostgresAttemptStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAttemptStore creates a store on top of an open pool.
func NewPostgresAttemptStore(pool *pgxpool.Pool) (*PostgresAttemptStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresAttemptStore{pool: pool}, nil
}

const attemptColumns = `a.id, a.user_id, a.topic_id, a.started_at, a.completed_at, a.total_questions,
	a.correct_answers, a.score_percent, a.result_json, a.grading_status, a.last_updated_at, a.grading_error`

func attemptDest(a *Attempt, resultJSON **string) []any {
	return []any{&a.ID, &a.UserID, &a.TopicID, &a.StartedAt, &a.CompletedAt, &a.TotalQuestions,
		&a.CorrectAnswers, &a.ScorePercent, resultJSON, &a.Status, &a.LastUpdatedAt, &a.GradingError}
}

func (s *PostgresAttemptStore) Create(ctx context.Context, a *Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if a.LastUpdatedAt.IsZero() {
		a.LastUpdatedAt = a.StartedAt
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO test_attempts (user_id, topic_id, started_at, completed_at, total_questions,
			correct_answers, score_percent, result_json, grading_status, last_updated_at, grading_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		a.UserID, a.TopicID, a.StartedAt, a.CompletedAt, a.TotalQuestions,
		a.CorrectAnswers, a.ScorePercent, nullIfEmpty(a.ResultJSON), a.Status, a.LastUpdatedAt, a.GradingError,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *PostgresAttemptStore) Get(ctx context.Context, id int64) (*Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var a Attempt
	var raw *string
	err := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM test_attempts a WHERE a.id = $1`, id,
	).Scan(attemptDest(&a, &raw)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrAttemptNotFound, id)
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if raw != nil {
		a.ResultJSON = *raw
	}
	return &a, nil
}

func (s *PostgresAttemptStore) ListPending(ctx context.Context, limit int) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+`,
			t.id, t.title, t.file_name, t.type, t.is_enabled, t.is_deleted, t.created_at
		FROM test_attempts a
		JOIN topics t ON t.id = a.topic_id
		WHERE a.grading_status = $1
		ORDER BY a.started_at, a.id
		LIMIT $2`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var raw *string
		var t content.Topic
		dest := append(attemptDest(&a, &raw),
			&t.ID, &t.Title, &t.FileName, &t.Type, &t.IsEnabled, &t.IsDeleted, &t.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if raw != nil {
			a.ResultJSON = *raw
		}
		a.Topic = &t
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *PostgresAttemptStore) MarkProcessing(ctx context.Context, id int64, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE test_attempts SET grading_status = $2, last_updated_at = $3
		WHERE id = $1 AND grading_status = $4`,
		id, StatusProcessing, at, StatusPending)
	if err != nil {
		return false, fmt.Errorf("claim attempt: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresAttemptStore) Complete(ctx context.Context, a *Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE test_attempts
		SET result_json = $2, score_percent = $3, grading_status = $4,
			grading_error = NULL, last_updated_at = $5
		WHERE id = $1`,
		a.ID, nullIfEmpty(a.ResultJSON), a.ScorePercent, StatusCompleted, a.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrAttemptNotFound, a.ID)
	}
	return nil
}

func (s *PostgresAttemptStore) Fail(ctx context.Context, id int64, reason string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE test_attempts SET grading_status = $2, grading_error = $3, last_updated_at = $4
		WHERE id = $1`,
		id, StatusFailed, reason, at)
	if err != nil {
		return fmt.Errorf("fail attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrAttemptNotFound, id)
	}
	return nil
}

func (s *PostgresAttemptStore) Requeue(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE test_attempts SET grading_status = $2, grading_error = NULL, last_updated_at = $3
		WHERE id = $1 AND grading_status = $4`,
		id, StatusPending, at, StatusFailed)
	if err != nil {
		return fmt.Errorf("requeue attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		a, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("attempt %d is %s, only failed attempts can be requeued", id, a.Status)
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
