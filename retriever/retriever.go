// Package retriever implements the retrieval strategies. A Strategy turns a
// query into a ranked set of chunks; the vector strategy searches the
// embedding index, the graph strategy walks the knowledge graph and its
// community structure. Consumers downstream (context assembly, answer
// generation) are strategy-agnostic.
package retriever

import (
	"context"

	"github.com/smallnest/ragcore"
)

// Strategy retrieves chunks relevant to a query within one workspace. An
// empty result is a valid outcome, not an error.
type Strategy interface {
	Retrieve(ctx context.Context, workspaceID, query string) (*ragcore.RetrievalResult, error)
}

// ChunkFetcher hydrates chunk ids into chunk records. chunkstore.Store
// satisfies it.
type ChunkFetcher interface {
	GetChunks(ctx context.Context, workspaceID string, chunkIDs []string) ([]ragcore.Chunk, error)
}

// QueryIndex is the vector search surface the vector strategy consumes.
// *index.Index satisfies it.
type QueryIndex interface {
	Search(ctx context.Context, workspaceID string, query []float32, topK int) ([]ragcore.Match, error)
}

// VectorStrategy embeds the query text and searches the vector index.
type VectorStrategy struct {
	embedder ragcore.Embedder
	index    QueryIndex
	chunks   ChunkFetcher
	topK     int
}

// VectorOptions configures the vector strategy. Zero values are replaced
// with defaults.
type VectorOptions struct {
	TopK int // Default 5
}

// NewVectorStrategy creates a vector retrieval strategy.
func NewVectorStrategy(embedder ragcore.Embedder, index QueryIndex, chunks ChunkFetcher, opts VectorOptions) *VectorStrategy {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &VectorStrategy{
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		topK:     opts.TopK,
	}
}

var _ Strategy = (*VectorStrategy)(nil)

// Retrieve embeds the query and returns the top-k most similar chunks.
func (s *VectorStrategy) Retrieve(ctx context.Context, workspaceID, query string) (*ragcore.RetrievalResult, error) {
	vector, err := s.embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.index.Search(ctx, workspaceID, vector, s.topK)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &ragcore.RetrievalResult{}, nil
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match.ChunkID)
	}
	records, err := s.chunks.GetChunks(ctx, workspaceID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]ragcore.Chunk, len(records))
	for _, chunk := range records {
		byID[chunk.ID] = chunk
	}

	result := &ragcore.RetrievalResult{Chunks: make([]ragcore.ScoredChunk, 0, len(matches))}
	for _, match := range matches {
		chunk, ok := byID[match.ChunkID]
		if !ok {
			// Indexed but no longer stored; skip rather than emit empty text.
			continue
		}
		result.Chunks = append(result.Chunks, ragcore.ScoredChunk{
			ChunkID:    chunk.ID,
			Text:       chunk.Text,
			Score:      match.Score,
			SourceRefs: []string{chunk.DocumentID},
		})
	}
	return result, nil
}
