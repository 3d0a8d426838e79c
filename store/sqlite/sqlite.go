// Package sqlite provides a ThreadStore backed by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/adaptiverag/store"
)

// ThreadStore implements store.ThreadStore using SQLite
type ThreadStore struct {
	db        *sql.DB
	tableName string
}

var _ store.ThreadStore = (*ThreadStore)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "threads"
}

// NewThreadStore opens the database and creates the table if needed.
func NewThreadStore(opts SqliteOptions) (*ThreadStore, error) {
	db, err := sql.Open("sqlite3", opts.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "threads"
	}

	s := &ThreadStore{db: db, tableName: tableName}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *ThreadStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			messages TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL
		);
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *ThreadStore) Close() error {
	return s.db.Close()
}

// Load retrieves a thread by id.
func (s *ThreadStore) Load(ctx context.Context, id string) (*store.Thread, error) {
	query := fmt.Sprintf(`SELECT id, messages, updated_at, version FROM %s WHERE id = ?`, s.tableName)

	t := &store.Thread{}
	var messagesJSON string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &messagesJSON, &t.UpdatedAt, &t.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
		}
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &t.Messages); err != nil {
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
	now := time.Now().UTC()

	var res sql.Result
	if t.Version == 0 {
		query := fmt.Sprintf(`
			INSERT INTO %s (id, messages, updated_at, version)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(id) DO NOTHING
		`, s.tableName)
		res, err = s.db.ExecContext(ctx, query, t.ID, string(messagesJSON), now)
	} else {
		query := fmt.Sprintf(`
			UPDATE %s SET messages = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?
		`, s.tableName)
		res, err = s.db.ExecContext(ctx, query, string(messagesJSON), now, t.ID, t.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s at version %d", store.ErrVersionConflict, t.ID, t.Version)
	}

	t.Version++
	t.UpdatedAt = now
	return nil
}

// Delete removes a thread.
func (s *ThreadStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.tableName)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
	}
	return nil
}

// List returns every thread id.
func (s *ThreadStore) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY id ASC`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query)
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
