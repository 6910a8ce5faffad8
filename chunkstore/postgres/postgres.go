// Package postgres implements the chunk store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/chunkstore"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresChunkStore implements chunkstore.Store using PostgreSQL.
type PostgresChunkStore struct {
	pool      DBPool
	tableName string
}

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "chunks"
}

// NewPostgresChunkStore creates a new Postgres chunk store.
func NewPostgresChunkStore(ctx context.Context, opts PostgresOptions) (*PostgresChunkStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "chunks"
	}

	return &PostgresChunkStore{pool: pool, tableName: tableName}, nil
}

// NewPostgresChunkStoreWithPool creates a store over an existing pool.
// Useful for testing with mocks.
func NewPostgresChunkStoreWithPool(pool DBPool, tableName string) *PostgresChunkStore {
	if tableName == "" {
		tableName = "chunks"
	}
	return &PostgresChunkStore{pool: pool, tableName: tableName}
}

var _ chunkstore.Store = (*PostgresChunkStore)(nil)

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresChunkStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			position INTEGER NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (workspace_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_document ON %s (workspace_id, document_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresChunkStore) Close() {
	s.pool.Close()
}

// PutChunks replaces the document's chunks in one transaction, so a failed
// replace leaves the previous chunks in place.
func (s *PostgresChunkStore) PutChunks(ctx context.Context, workspaceID, documentID string, chunks []ragcore.Chunk) error {
	if err := chunkstore.ValidatePositions(chunks); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE workspace_id = $1 AND document_id = $2", s.tableName)
	if _, err := tx.Exec(ctx, deleteQuery, workspaceID, documentID); err != nil {
		return fmt.Errorf("failed to replace document chunks: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, workspace_id, document_id, chunk_text, position, token_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.tableName)

	for _, chunk := range chunks {
		_, err := tx.Exec(ctx, insertQuery,
			chunk.ID, workspaceID, documentID, chunk.Text, chunk.Position, chunk.TokenCount)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// GetChunks fetches chunks by id, in request order, skipping unknown ids.
func (s *PostgresChunkStore) GetChunks(ctx context.Context, workspaceID string, chunkIDs []string) ([]ragcore.Chunk, error) {
	if len(chunkIDs) == 0 {
		return []ragcore.Chunk{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, workspace_id, document_id, chunk_text, position, token_count
		FROM %s
		WHERE workspace_id = $1 AND id = ANY($2)
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, workspaceID, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	found := make(map[string]ragcore.Chunk, len(chunkIDs))
	for rows.Next() {
		var chunk ragcore.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.WorkspaceID, &chunk.DocumentID,
			&chunk.Text, &chunk.Position, &chunk.TokenCount); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		found[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}

	chunks := make([]ragcore.Chunk, 0, len(found))
	for _, id := range chunkIDs {
		if chunk, ok := found[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// DeleteDocument removes the document's chunks.
func (s *PostgresChunkStore) DeleteDocument(ctx context.Context, workspaceID, documentID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE workspace_id = $1 AND document_id = $2", s.tableName)
	if _, err := s.pool.Exec(ctx, query, workspaceID, documentID); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

// DeleteWorkspace removes every chunk of the workspace.
func (s *PostgresChunkStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE workspace_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, workspaceID); err != nil {
		return fmt.Errorf("failed to delete workspace chunks: %w", err)
	}
	return nil
}
