// Package postgres provides a ThreadStore backed by PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/adaptiverag/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ThreadStore implements store.ThreadStore using PostgreSQL
type ThreadStore struct {
	pool      DBPool
	tableName string
	now       func() time.Time
}

var _ store.ThreadStore = (*ThreadStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "threads"
}

// NewThreadStore connects to Postgres and creates the table if needed.
func NewThreadStore(ctx context.Context, opts PostgresOptions) (*ThreadStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := NewThreadStoreWithPool(pool, opts.TableName)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewThreadStoreWithPool creates a store over an existing pool.
// Useful for testing with mocks
func NewThreadStoreWithPool(pool DBPool, tableName string) *ThreadStore {
	if tableName == "" {
		tableName = "threads"
	}
	return &ThreadStore{
		pool:      pool,
		tableName: tableName,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *ThreadStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			messages JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			version INTEGER NOT NULL
		)
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *ThreadStore) Close() error {
	s.pool.Close()
	return nil
}

// Load retrieves a thread by id.
func (s *ThreadStore) Load(ctx context.Context, id string) (*store.Thread, error) {
	query := fmt.Sprintf(`SELECT id, messages, updated_at, version FROM %s WHERE id = $1`, s.tableName)

	t := &store.Thread{}
	var messagesJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&t.ID, &messagesJSON, &t.UpdatedAt, &t.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
		}
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	if err := json.Unmarshal(messagesJSON, &t.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return t, nil
}

// Save inserts a new thread or updates an existing one at the expected version.
func (s *ThreadStore) Save(ctx context.Context, t *store.Thread) error {
	messagesJSON, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	now := s.now()

	var tag pgconn.CommandTag
	if t.Version == 0 {
		query := fmt.Sprintf(`INSERT INTO %s (id, messages, updated_at, version) VALUES ($1, $2, $3, 1) ON CONFLICT (id) DO NOTHING`, s.tableName)
		tag, err = s.pool.Exec(ctx, query, t.ID, messagesJSON, now)
	} else {
		query := fmt.Sprintf(`UPDATE %s SET messages = $1, updated_at = $2, version = version + 1 WHERE id = $3 AND version = $4`, s.tableName)
		tag, err = s.pool.Exec(ctx, query, messagesJSON, now, t.ID, t.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s at version %d", store.ErrVersionConflict, t.ID, t.Version)
	}

	t.Version++
	t.UpdatedAt = now
	return nil
}

// Delete removes a thread.
func (s *ThreadStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName), id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
	}
	return nil
}

// List returns every thread id.
func (s *ThreadStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id ASC`, s.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
