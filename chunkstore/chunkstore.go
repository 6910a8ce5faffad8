// Package chunkstore persists document chunks per workspace. The ingestion
// side writes ordered chunks for a document; the retrieval side fetches
// chunks by id to hydrate retrieval results. Backends exist for memory,
// Redis, PostgreSQL and SQLite under subpackages.
package chunkstore

import (
	"context"
	"fmt"

	"github.com/smallnest/ragcore"
)

// Store is the chunk persistence boundary.
//
// PutChunks replaces the chunks of a document: positions must be unique and
// monotonically increasing within the document, otherwise the call fails with
// ErrInvalidParameter and nothing is written. GetChunks returns the found
// chunks in the requested id order, silently skipping unknown ids. Document
// and workspace deletes cascade to the owned chunks.
type Store interface {
	PutChunks(ctx context.Context, workspaceID, documentID string, chunks []ragcore.Chunk) error
	GetChunks(ctx context.Context, workspaceID string, chunkIDs []string) ([]ragcore.Chunk, error)
	DeleteDocument(ctx context.Context, workspaceID, documentID string) error
	DeleteWorkspace(ctx context.Context, workspaceID string) error
}

// ValidatePositions checks the ordering invariant shared by all backends.
func ValidatePositions(chunks []ragcore.Chunk) error {
	for i, chunk := range chunks {
		if i > 0 && chunk.Position <= chunks[i-1].Position {
			return fmt.Errorf("%w: chunk positions must be strictly increasing, got %d after %d",
				ragcore.ErrInvalidParameter, chunk.Position, chunks[i-1].Position)
		}
	}
	return nil
}
