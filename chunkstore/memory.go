package chunkstore

import (
	"context"
	"sync"

	"github.com/smallnest/ragcore"
)

// MemoryStore is the in-memory Store, suitable for tests and single-process
// deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	workspaces map[string]*workspaceChunks
}

type workspaceChunks struct {
	chunks      map[string]ragcore.Chunk
	byDocument  map[string][]string
	documentFor map[string]string
}

// NewMemoryStore creates an empty in-memory chunk store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workspaces: make(map[string]*workspaceChunks)}
}

var _ Store = (*MemoryStore)(nil)

// PutChunks replaces the document's chunks.
func (s *MemoryStore) PutChunks(ctx context.Context, workspaceID, documentID string, chunks []ragcore.Chunk) error {
	if err := ValidatePositions(chunks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[workspaceID]
	if !ok {
		ws = &workspaceChunks{
			chunks:      make(map[string]ragcore.Chunk),
			byDocument:  make(map[string][]string),
			documentFor: make(map[string]string),
		}
		s.workspaces[workspaceID] = ws
	}

	ws.removeDocument(documentID)

	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunk.WorkspaceID = workspaceID
		chunk.DocumentID = documentID
		ws.chunks[chunk.ID] = chunk
		ws.documentFor[chunk.ID] = documentID
		ids = append(ids, chunk.ID)
	}
	ws.byDocument[documentID] = ids
	return nil
}

// GetChunks fetches chunks by id, in request order, skipping unknown ids.
func (s *MemoryStore) GetChunks(ctx context.Context, workspaceID string, chunkIDs []string) ([]ragcore.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return []ragcore.Chunk{}, nil
	}

	out := make([]ragcore.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := ws.chunks[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

// DeleteDocument removes the document's chunks. Unknown documents are a
// no-op.
func (s *MemoryStore) DeleteDocument(ctx context.Context, workspaceID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ws, ok := s.workspaces[workspaceID]; ok {
		ws.removeDocument(documentID)
	}
	return nil
}

// DeleteWorkspace removes every chunk of the workspace.
func (s *MemoryStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workspaces, workspaceID)
	return nil
}

func (ws *workspaceChunks) removeDocument(documentID string) {
	for _, id := range ws.byDocument[documentID] {
		delete(ws.chunks, id)
		delete(ws.documentFor, id)
	}
	delete(ws.byDocument, documentID)
}
