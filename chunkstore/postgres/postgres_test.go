package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragcore"
)

func TestPostgresChunkStore_PutChunks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresChunkStoreWithPool(mock, "chunks")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks")).
		WithArgs("ws1", "doc1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("c1", "ws1", "doc1", "hello", 0, 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("c2", "ws1", "doc1", "world", 1, 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	chunks := []ragcore.Chunk{
		{ID: "c1", Text: "hello", Position: 0, TokenCount: 2},
		{ID: "c2", Text: "world", Position: 1, TokenCount: 2},
	}
	require.NoError(t, store.PutChunks(context.Background(), "ws1", "doc1", chunks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChunkStore_PutChunksRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresChunkStoreWithPool(mock, "chunks")

	wantErr := errors.New("disk full")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks")).
		WithArgs("ws1", "doc1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("c1", "ws1", "doc1", "hello", 0, 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("c2", "ws1", "doc1", "world", 1, 2).
		WillReturnError(wantErr)
	mock.ExpectRollback()

	chunks := []ragcore.Chunk{
		{ID: "c1", Text: "hello", Position: 0, TokenCount: 2},
		{ID: "c2", Text: "world", Position: 1, TokenCount: 2},
	}
	err = store.PutChunks(context.Background(), "ws1", "doc1", chunks)
	assert.ErrorIs(t, err, wantErr)
	// The delete and the partial inserts are rolled back, never committed.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChunkStore_PutChunksInvalidPositions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresChunkStoreWithPool(mock, "chunks")

	chunks := []ragcore.Chunk{
		{ID: "c1", Position: 2},
		{ID: "c2", Position: 1},
	}
	err = store.PutChunks(context.Background(), "ws1", "doc1", chunks)
	assert.ErrorIs(t, err, ragcore.ErrInvalidParameter)
	// The invariant is checked before any statement runs.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChunkStore_GetChunks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresChunkStoreWithPool(mock, "chunks")

	rows := pgxmock.NewRows([]string{"id", "workspace_id", "document_id", "chunk_text", "position", "token_count"}).
		AddRow("c1", "ws1", "doc1", "hello", 0, 2).
		AddRow("c2", "ws1", "doc1", "world", 1, 2)

	mock.ExpectQuery("FROM chunks").
		WithArgs("ws1", []string{"c2", "c1", "missing"}).
		WillReturnRows(rows)

	got, err := store.GetChunks(context.Background(), "ws1", []string{"c2", "c1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Request order, not row order.
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, "c1", got[1].ID)
	assert.Equal(t, "hello", got[1].Text)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChunkStore_GetChunksEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresChunkStoreWithPool(mock, "chunks")

	got, err := store.GetChunks(context.Background(), "ws1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChunkStore_DeleteDocument(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresChunkStoreWithPool(mock, "chunks")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks WHERE workspace_id = $1 AND document_id = $2")).
		WithArgs("ws1", "doc1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, store.DeleteDocument(context.Background(), "ws1", "doc1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChunkStore_DeleteWorkspace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresChunkStoreWithPool(mock, "chunks")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks WHERE workspace_id = $1")).
		WithArgs("ws1").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	require.NoError(t, store.DeleteWorkspace(context.Background(), "ws1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChunkStore_QueryErrorPropagates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresChunkStoreWithPool(mock, "chunks")

	wantErr := errors.New("connection refused")
	mock.ExpectQuery("FROM chunks").
		WithArgs("ws1", []string{"c1"}).
		WillReturnError(wantErr)

	_, err = store.GetChunks(context.Background(), "ws1", []string{"c1"})
	assert.ErrorIs(t, err, wantErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
