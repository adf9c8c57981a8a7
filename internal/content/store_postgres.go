package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Repository.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a repository on top of an open pool.
// The schema is expected to exist (see database.EnsureSchema).
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const topicColumns = `id, title, file_name, type, is_enabled, is_deleted, created_at`

func scanTopic(row pgx.Row) (*Topic, error) {
	var t Topic
	if err := row.Scan(&t.ID, &t.Title, &t.FileName, &t.Type, &t.IsEnabled, &t.IsDeleted, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) FindTopicByKey(ctx context.Context, key string) (*Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t, err := scanTopic(s.pool.QueryRow(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE file_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, key)
		}
		return nil, fmt.Errorf("find topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t, err := scanTopic(s.pool.QueryRow(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrTopicNotFound, id)
		}
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context, includeDeleted bool) ([]Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+topicColumns+`
		 FROM topics
		 WHERE $1 OR NOT is_deleted
		 ORDER BY id`,
		includeDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) CreateTopic(ctx context.Context, t *Topic) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO topics (title, file_name, file_key, type, is_enabled, is_deleted)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		t.Title,
		t.FileName,
		t.Key(),
		t.Type,
		t.IsEnabled,
		t.IsDeleted,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTopic(ctx context.Context, t *Topic) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE topics
		 SET title = $2, file_name = $3, file_key = $4, type = $5,
		     is_enabled = $6, is_deleted = $7, updated_at = NOW()
		 WHERE id = $1`,
		t.ID,
		t.Title,
		t.FileName,
		t.Key(),
		t.Type,
		t.IsEnabled,
		t.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrTopicNotFound, t.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteTopic(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrTopicNotFound, id)
	}
	return nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	loggedAt := e.Timestamp
	if loggedAt.IsZero() {
		loggedAt = time.Now()
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO test_history (file_name, file_key, folder_path, action, content, content_hash, logged_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, logged_at`,
		e.FileName,
		PathKey(e.FileName),
		nullIfEmpty(e.FolderPath),
		e.Action,
		e.Content,
		nullIfEmpty(e.ContentHash),
		loggedAt,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestContent(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var content string
	err := s.pool.QueryRow(ctx,
		`SELECT content
		 FROM test_history
		 WHERE file_key = $1 AND content IS NOT NULL
		 ORDER BY logged_at DESC, id DESC
		 LIMIT 1`,
		key,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("latest content: %w", err)
	}
	return content, true, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, key string) ([]HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, file_name, folder_path, action, content, content_hash, logged_at
		 FROM test_history
		 WHERE file_key = $1
		 ORDER BY logged_at DESC, id DESC`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var folderPath, hash *string
		if err := rows.Scan(&e.ID, &e.FileName, &folderPath, &e.Action, &e.Content, &hash, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if folderPath != nil {
			e.FolderPath = *folderPath
		}
		if hash != nil {
			e.ContentHash = *hash
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
