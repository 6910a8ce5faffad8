// Package sqlite implements the chunk store on SQLite, for single-node
// deployments that want durability without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/chunkstore"
)

// SqliteChunkStore implements chunkstore.Store using SQLite.
type SqliteChunkStore struct {
	db        *sql.DB
	tableName string
}

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "chunks"
}

// NewSqliteChunkStore creates a new SQLite chunk store and initializes its
// schema.
func NewSqliteChunkStore(opts SqliteOptions) (*SqliteChunkStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "chunks"
	}

	store := &SqliteChunkStore{db: db, tableName: tableName}
	if err := store.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

var _ chunkstore.Store = (*SqliteChunkStore)(nil)

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteChunkStore) InitSchema(ctx context.Context) error {
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

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteChunkStore) Close() error {
	return s.db.Close()
}

// PutChunks replaces the document's chunks in one transaction.
func (s *SqliteChunkStore) PutChunks(ctx context.Context, workspaceID, documentID string, chunks []ragcore.Chunk) error {
	if err := chunkstore.ValidatePositions(chunks); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE workspace_id = ? AND document_id = ?", s.tableName)
	if _, err := tx.ExecContext(ctx, deleteQuery, workspaceID, documentID); err != nil {
		return fmt.Errorf("failed to replace document chunks: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, workspace_id, document_id, chunk_text, position, token_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.tableName)

	for _, chunk := range chunks {
		_, err := tx.ExecContext(ctx, insertQuery,
			chunk.ID, workspaceID, documentID, chunk.Text, chunk.Position, chunk.TokenCount)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// GetChunks fetches chunks by id, in request order, skipping unknown ids.
func (s *SqliteChunkStore) GetChunks(ctx context.Context, workspaceID string, chunkIDs []string) ([]ragcore.Chunk, error) {
	if len(chunkIDs) == 0 {
		return []ragcore.Chunk{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	query := fmt.Sprintf(`
		SELECT id, workspace_id, document_id, chunk_text, position, token_count
		FROM %s
		WHERE workspace_id = ? AND id IN (%s)
	`, s.tableName, placeholders)

	args := make([]any, 0, len(chunkIDs)+1)
	args = append(args, workspaceID)
	for _, id := range chunkIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SqliteChunkStore) DeleteDocument(ctx context.Context, workspaceID, documentID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE workspace_id = ? AND document_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, workspaceID, documentID); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

// DeleteWorkspace removes every chunk of the workspace.
func (s *SqliteChunkStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE workspace_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, workspaceID); err != nil {
		return fmt.Errorf("failed to delete workspace chunks: %w", err)
	}
	return nil
}
