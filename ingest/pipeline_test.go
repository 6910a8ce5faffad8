package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/chunkstore"
	"github.com/smallnest/ragcore/graphstore"
	"github.com/smallnest/ragcore/index"
)

type fixedEmbedder struct {
	err error
	// short forces a vector-count mismatch when true.
	short bool
}

func (e *fixedEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (e *fixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	n := len(texts)
	if e.short && n > 0 {
		n--
	}
	out := make([][]float32, 0, n)
	for _, text := range texts[:n] {
		out = append(out, []float32{float32(len(text)), 1})
	}
	return out, nil
}

type mappedExtractor struct {
	entities      map[string][]ragcore.ExtractedEntity
	relationships map[string][]ragcore.ExtractedRelationship
	err           error
}

func (e *mappedExtractor) Extract(ctx context.Context, text string) ([]ragcore.ExtractedEntity, []ragcore.ExtractedRelationship, error) {
	if e.err != nil {
		return nil, nil, e.err
	}
	return e.entities[text], e.relationships[text], nil
}

func newTestPipeline(embedder ragcore.Embedder, extractor ragcore.Extractor) (*Pipeline, *chunkstore.MemoryStore, *index.Index, *graphstore.Store) {
	chunks := chunkstore.NewMemoryStore()
	ix := index.New(ragcore.DefaultWorkspaceConfig())
	graph := graphstore.New(ragcore.DefaultWorkspaceConfig())
	p := NewPipeline(embedder, extractor, chunks, ix, graph, PipelineOptions{
		Splitter: NewSimpleSplitter(40, 0),
	})
	return p, chunks, ix, graph
}

func TestPipeline_IngestDocumentEndToEnd(t *testing.T) {
	ctx := context.Background()

	extractor := &mappedExtractor{
		entities: map[string][]ragcore.ExtractedEntity{
			"Alice works with Bob.": {{Name: "Alice", Type: "Person"}, {Name: "Bob", Type: "Person"}},
			"Carol runs the lab.":   {{Name: "Carol", Type: "Person"}},
		},
		relationships: map[string][]ragcore.ExtractedRelationship{
			"Alice works with Bob.": {{Source: "Alice", Target: "Bob", Type: "works_with", Confidence: 0.9}},
		},
	}
	p, chunks, ix, graph := newTestPipeline(&fixedEmbedder{}, extractor)

	stats, err := p.IngestDocument(ctx, "ws1", "doc1", "Alice works with Bob.\n\nCarol runs the lab.")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 3, stats.Entities)
	assert.Equal(t, 1, stats.Relationships)

	stored, err := chunks.GetChunks(ctx, "ws1", []string{"doc1_chunk_0", "doc1_chunk_1"})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Alice works with Bob.", stored[0].Text)
	assert.Equal(t, 0, stored[0].Position)
	assert.Equal(t, "doc1", stored[0].DocumentID)

	assert.Equal(t, 2, ix.Len("ws1"))

	aliceID, ok := graph.Resolve(ctx, "ws1", "Alice", "Person")
	require.True(t, ok)
	alice, err := graph.Entity(ctx, "ws1", aliceID)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1_chunk_0"}, alice.SourceChunkIDs)

	neighbors, err := graph.Neighbors(ctx, "ws1", aliceID, 1)
	require.NoError(t, err)
	assert.Len(t, neighbors, 1)
}

func TestPipeline_UnresolvedRelationshipEndpointSkipped(t *testing.T) {
	ctx := context.Background()

	extractor := &mappedExtractor{
		entities: map[string][]ragcore.ExtractedEntity{
			"Alice leads.": {{Name: "Alice", Type: "Person"}},
		},
		relationships: map[string][]ragcore.ExtractedRelationship{
			"Alice leads.": {{Source: "Alice", Target: "Ghost", Type: "knows", Confidence: 0.9}},
		},
	}
	p, _, _, _ := newTestPipeline(&fixedEmbedder{}, extractor)

	stats, err := p.IngestDocument(ctx, "ws1", "doc1", "Alice leads.")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 0, stats.Relationships)
}

func TestPipeline_LowConfidenceRelationshipNotCounted(t *testing.T) {
	ctx := context.Background()

	extractor := &mappedExtractor{
		entities: map[string][]ragcore.ExtractedEntity{
			"Alice met Bob.": {{Name: "Alice", Type: "Person"}, {Name: "Bob", Type: "Person"}},
		},
		relationships: map[string][]ragcore.ExtractedRelationship{
			"Alice met Bob.": {{Source: "Alice", Target: "Bob", Type: "met", Confidence: 0.1}},
		},
	}
	p, _, _, _ := newTestPipeline(&fixedEmbedder{}, extractor)

	stats, err := p.IngestDocument(ctx, "ws1", "doc1", "Alice met Bob.")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Relationships)
}

func TestPipeline_EmptyTextIsNoOp(t *testing.T) {
	ctx := context.Background()
	p, _, ix, _ := newTestPipeline(&fixedEmbedder{}, &mappedExtractor{})

	stats, err := p.IngestDocument(ctx, "ws1", "doc1", "   ")
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, stats)
	assert.Zero(t, ix.Len("ws1"))
}

func TestPipeline_EmptyDocumentID(t *testing.T) {
	p, _, _, _ := newTestPipeline(&fixedEmbedder{}, &mappedExtractor{})

	_, err := p.IngestDocument(context.Background(), "ws1", "", "text")
	assert.ErrorIs(t, err, ragcore.ErrInvalidParameter)
}

func TestPipeline_EmbedderErrorPropagates(t *testing.T) {
	embedErr := errors.New("model offline")
	p, _, _, _ := newTestPipeline(&fixedEmbedder{err: embedErr}, &mappedExtractor{})

	_, err := p.IngestDocument(context.Background(), "ws1", "doc1", "some text")
	assert.ErrorIs(t, err, embedErr)
}

func TestPipeline_VectorCountMismatch(t *testing.T) {
	p, _, _, _ := newTestPipeline(&fixedEmbedder{short: true}, &mappedExtractor{})

	_, err := p.IngestDocument(context.Background(), "ws1", "doc1", "some text")
	assert.ErrorIs(t, err, ragcore.ErrExternalService)
}

func TestPipeline_ExtractorErrorPropagates(t *testing.T) {
	extractErr := errors.New("extraction failed")
	p, _, _, _ := newTestPipeline(&fixedEmbedder{}, &mappedExtractor{err: extractErr})

	_, err := p.IngestDocument(context.Background(), "ws1", "doc1", "some text")
	assert.ErrorIs(t, err, extractErr)
}

func TestPipeline_ReingestReplacesChunks(t *testing.T) {
	ctx := context.Background()
	p, chunks, _, _ := newTestPipeline(&fixedEmbedder{}, &mappedExtractor{})

	_, err := p.IngestDocument(ctx, "ws1", "doc1", "first paragraph goes here.\n\nsecond paragraph follows after.")
	require.NoError(t, err)

	_, err = p.IngestDocument(ctx, "ws1", "doc1", "replacement.")
	require.NoError(t, err)

	stored, err := chunks.GetChunks(ctx, "ws1", []string{"doc1_chunk_0", "doc1_chunk_1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "replacement.", stored[0].Text)
}
