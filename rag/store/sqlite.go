package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/adaptiverag/rag"
)

// SQLiteVectorStore persists chunks in SQLite and serves searches from an
// in-memory copy loaded at open time.
type SQLiteVectorStore struct {
	db        *sql.DB
	tableName string
	cache     *InMemoryVectorStore
}

var _ rag.VectorStore = (*SQLiteVectorStore)(nil)

// SQLiteOptions configuration for the SQLite collection
type SQLiteOptions struct {
	Path      string
	TableName string // Default "chunks"
}

// NewSQLiteVectorStore opens (or creates) the collection at opts.Path.
func NewSQLiteVectorStore(ctx context.Context, opts SQLiteOptions) (*SQLiteVectorStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases consistent
	db.SetMaxOpenConns(1)

	tableName := opts.TableName
	if tableName == "" {
		tableName = "chunks"
	}

	s := &SQLiteVectorStore{db: db, tableName: tableName, cache: NewInMemoryVectorStore()}
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SQLiteVectorStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			metadata TEXT,
			embedding BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_source ON %s (source);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteVectorStore) load(ctx context.Context) error {
	query := fmt.Sprintf(`
		SELECT id, source, chunk_index, page, text, metadata, embedding
		FROM %s ORDER BY seq ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		var c rag.Chunk
		var metadataJSON sql.NullString
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Index, &c.Page, &c.Text, &metadataJSON, &blob); err != nil {
			return fmt.Errorf("failed to scan chunk: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &c.Metadata); err != nil {
				return fmt.Errorf("failed to unmarshal metadata of %s: %w", c.ID, err)
			}
		}
		c.Embedding, err = decodeVector(blob)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.chunks = nil
	return s.cache.ingestLocked(chunks)
}

// Search delegates to the in-memory copy.
func (s *SQLiteVectorStore) Search(ctx context.Context, query []float32, k int) ([]rag.SearchResult, error) {
	return s.cache.Search(ctx, query, k)
}

// Ingest writes chunks in one transaction, replacing earlier chunks of the
// same sources, then updates the in-memory copy.
func (s *SQLiteVectorStore) Ingest(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	// validate against the cache before touching the database
	probe := &InMemoryVectorStore{chunks: s.cache.chunks, dim: s.cache.dim}
	if err := probe.ingestLocked(chunks); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seen := map[string]bool{}
	var sources []any
	for _, c := range chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sources)), ",")
	del := fmt.Sprintf("DELETE FROM %s WHERE source IN (%s)", s.tableName, placeholders)
	if _, err := tx.ExecContext(ctx, del, sources...); err != nil {
		return fmt.Errorf("failed to delete previous chunks: %w", err)
	}

	ins := fmt.Sprintf(`
		INSERT INTO %s (id, source, chunk_index, page, text, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.tableName)
	stmt, err := tx.PrepareContext(ctx, ins)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata of %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Index, c.Page, c.Text, string(metadataJSON), encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	s.cache.chunks = probe.chunks
	s.cache.dim = probe.dim
	return nil
}

// DeleteSource deletes the rows of source and drops them from the
// in-memory copy.
func (s *SQLiteVectorStore) DeleteSource(ctx context.Context, source string) error {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	del := fmt.Sprintf("DELETE FROM %s WHERE source = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, del, source); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	s.cache.deleteLocked(source)
	return nil
}

// Reset deletes every stored chunk.
func (s *SQLiteVectorStore) Reset(ctx context.Context) error {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.tableName)); err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	s.cache.chunks = nil
	s.cache.dim = 0
	return nil
}

// Stats reports the cached collection.
func (s *SQLiteVectorStore) Stats(ctx context.Context) (rag.Stats, error) {
	return s.cache.Stats(ctx)
}

// Close closes the database connection
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
