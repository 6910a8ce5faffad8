package ingest

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/log"
	"github.com/smallnest/ragcore/tokenizer"
)

// ChunkWriter persists the chunks of a document.
type ChunkWriter interface {
	PutChunks(ctx context.Context, workspaceID, documentID string, chunks []ragcore.Chunk) error
}

// VectorWriter indexes chunk embeddings.
type VectorWriter interface {
	Upsert(ctx context.Context, workspaceID, chunkID string, vector []float32, metadata map[string]any) error
}

// GraphWriter receives extracted entities and relationships.
type GraphWriter interface {
	AddEntity(ctx context.Context, workspaceID, name, typ, sourceChunkID string) (string, error)
	AddRelationship(ctx context.Context, workspaceID, sourceID, targetID, typ string, confidence float64, sourceChunkID string) (string, error)
}

// Stats summarizes one document ingestion.
type Stats struct {
	Chunks        int
	Entities      int
	Relationships int
}

// Pipeline drives document ingestion end to end: split the text, store the
// chunks, embed and index them, then extract entities and relationships into
// the knowledge graph. Extraction runs concurrently per chunk; graph writes
// are applied afterwards in chunk order so results are deterministic.
type Pipeline struct {
	splitter    Splitter
	embedder    ragcore.Embedder
	extractor   ragcore.Extractor
	chunks      ChunkWriter
	index       VectorWriter
	graph       GraphWriter
	counter     ragcore.TokenCounter
	concurrency int
	logger      log.Logger
}

// PipelineOptions configures a Pipeline. Zero values are replaced with
// defaults.
type PipelineOptions struct {
	Splitter     Splitter             // Default recursive, 1000 chars
	TokenCounter ragcore.TokenCounter // Default len/4 estimator
	Concurrency  int                  // Extraction fan-out, default 4
	Logger       log.Logger
}

// NewPipeline creates an ingestion pipeline over the given stores and model
// boundaries.
func NewPipeline(embedder ragcore.Embedder, extractor ragcore.Extractor, chunks ChunkWriter, index VectorWriter, graph GraphWriter, opts PipelineOptions) *Pipeline {
	if opts.Splitter == nil {
		opts.Splitter = NewRecursiveSplitter()
	}
	if opts.TokenCounter == nil {
		opts.TokenCounter = tokenizer.NewEstimator()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = log.GetDefaultLogger()
	}
	return &Pipeline{
		splitter:    opts.Splitter,
		embedder:    embedder,
		extractor:   extractor,
		chunks:      chunks,
		index:       index,
		graph:       graph,
		counter:     opts.TokenCounter,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// extraction holds one chunk's extractor output until the graph apply phase.
type extraction struct {
	chunkID       string
	entities      []ragcore.ExtractedEntity
	relationships []ragcore.ExtractedRelationship
}

// IngestDocument runs the full pipeline for one document. Re-ingesting a
// document id replaces its chunks. Empty or whitespace-only text is a no-op.
func (p *Pipeline) IngestDocument(ctx context.Context, workspaceID, documentID, text string) (*Stats, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id must not be empty", ragcore.ErrInvalidParameter)
	}

	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		return &Stats{}, nil
	}

	chunks := make([]ragcore.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = ragcore.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", documentID, i),
			Text:       piece,
			Position:   i,
			TokenCount: p.counter.Count(piece),
		}
	}
	if err := p.chunks.PutChunks(ctx, workspaceID, documentID, chunks); err != nil {
		return nil, fmt.Errorf("store chunks for document %s: %w", documentID, err)
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", documentID, err)
	}
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", ragcore.ErrExternalService, len(vectors), len(pieces))
	}
	for i, chunk := range chunks {
		metadata := map[string]any{"document_id": documentID, "position": chunk.Position}
		if err := p.index.Upsert(ctx, workspaceID, chunk.ID, vectors[i], metadata); err != nil {
			return nil, fmt.Errorf("index chunk %s: %w", chunk.ID, err)
		}
	}

	extractions := make([]extraction, len(chunks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		group.Go(func() error {
			entities, relationships, err := p.extractor.Extract(groupCtx, chunk.Text)
			if err != nil {
				return fmt.Errorf("extract chunk %s: %w", chunk.ID, err)
			}
			extractions[i] = extraction{chunkID: chunk.ID, entities: entities, relationships: relationships}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	stats := &Stats{Chunks: len(chunks)}
	if err := p.applyToGraph(ctx, workspaceID, extractions, stats); err != nil {
		return nil, err
	}

	p.logger.Info("ingested document %s into workspace %s: %d chunks, %d entities, %d relationships",
		documentID, workspaceID, stats.Chunks, stats.Entities, stats.Relationships)
	return stats, nil
}

// applyToGraph writes extractions in chunk order. Relationship endpoints are
// resolved against the names extracted from the same chunk; unresolved
// endpoints are skipped with a log line rather than failing the document.
func (p *Pipeline) applyToGraph(ctx context.Context, workspaceID string, extractions []extraction, stats *Stats) error {
	for _, ex := range extractions {
		ids := make(map[string]string, len(ex.entities))
		for _, entity := range ex.entities {
			id, err := p.graph.AddEntity(ctx, workspaceID, entity.Name, entity.Type, ex.chunkID)
			if err != nil {
				return fmt.Errorf("add entity %q from chunk %s: %w", entity.Name, ex.chunkID, err)
			}
			ids[normalizeName(entity.Name)] = id
			stats.Entities++
		}

		for _, rel := range ex.relationships {
			sourceID, okSource := ids[normalizeName(rel.Source)]
			targetID, okTarget := ids[normalizeName(rel.Target)]
			if !okSource || !okTarget {
				p.logger.Debug("workspace %s: skipping relationship %s-[%s]->%s from chunk %s, endpoint not extracted",
					workspaceID, rel.Source, rel.Type, rel.Target, ex.chunkID)
				continue
			}
			id, err := p.graph.AddRelationship(ctx, workspaceID, sourceID, targetID, rel.Type, rel.Confidence, ex.chunkID)
			if err != nil {
				return fmt.Errorf("add relationship %s->%s from chunk %s: %w", rel.Source, rel.Target, ex.chunkID, err)
			}
			if id != "" {
				stats.Relationships++
			}
		}
	}
	return nil
}

// normalizeName mirrors the graph store's entity name normalization so
// relationship endpoints resolve to the same identity.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
