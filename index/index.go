package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/smallnest/ragcore"
)

// Index is an in-memory vector index over chunk embeddings, partitioned per
// workspace. Cosine similarity search, stable ranking, and per-operation read
// consistency: a concurrent Search never observes a partially applied Upsert
// or Delete.
type Index struct {
	mu       sync.RWMutex
	defaults ragcore.WorkspaceConfig
	parts    map[string]*partition
}

// partition holds one workspace's vectors. Entries keep their insertion
// sequence so equal scores rank in insertion order.
type partition struct {
	mu        sync.RWMutex
	cfg       ragcore.WorkspaceConfig
	dimension int
	entries   map[string]*entry
	nextSeq   int
}

type entry struct {
	vector   []float32
	metadata map[string]any
	seq      int
}

// New creates an Index using cfg as the default configuration for workspaces
// that have not been configured explicitly.
func New(cfg ragcore.WorkspaceConfig) *Index {
	return &Index{
		defaults: cfg.Normalize(),
		parts:    make(map[string]*partition),
	}
}

// ConfigureWorkspace sets a workspace-specific configuration. It must be
// called before the workspace's first upsert to take effect on the dimension.
func (ix *Index) ConfigureWorkspace(workspaceID string, cfg ragcore.WorkspaceConfig) {
	p := ix.part(workspaceID)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg.Normalize()
	if p.dimension == 0 {
		p.dimension = cfg.Dimension
	}
}

func (ix *Index) part(workspaceID string) *partition {
	ix.mu.RLock()
	p, ok := ix.parts[workspaceID]
	ix.mu.RUnlock()
	if ok {
		return p
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if p, ok = ix.parts[workspaceID]; ok {
		return p
	}
	p = &partition{
		cfg:       ix.defaults,
		dimension: ix.defaults.Dimension,
		entries:   make(map[string]*entry),
	}
	ix.parts[workspaceID] = p
	return p
}

// Upsert adds or replaces the embedding for a chunk. The first upsert fixes
// the workspace dimension when the configuration left it unset; later vectors
// of a different length fail with ragcore.ErrDimensionMismatch and leave the
// partition untouched. Replacing an existing chunk keeps its insertion rank.
func (ix *Index) Upsert(ctx context.Context, workspaceID, chunkID string, vector []float32, metadata map[string]any) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector for chunk %s", ragcore.ErrInvalidParameter, chunkID)
	}

	p := ix.part(workspaceID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dimension == 0 {
		p.dimension = len(vector)
	} else if len(vector) != p.dimension {
		return fmt.Errorf("%w: workspace %s expects dimension %d, got %d",
			ragcore.ErrDimensionMismatch, workspaceID, p.dimension, len(vector))
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)

	if existing, ok := p.entries[chunkID]; ok {
		existing.vector = stored
		existing.metadata = metadata
		return nil
	}

	p.entries[chunkID] = &entry{
		vector:   stored,
		metadata: metadata,
		seq:      p.nextSeq,
	}
	p.nextSeq++
	return nil
}

// Delete removes a chunk's embedding. Deleting a nonexistent id is a no-op.
func (ix *Index) Delete(ctx context.Context, workspaceID, chunkID string) error {
	p := ix.part(workspaceID)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, chunkID)
	return nil
}

// Search returns the topK nearest neighbors of query by cosine similarity,
// restricted to the workspace, sorted descending with ties broken by
// insertion order. topK of 0 returns an empty list; negative topK fails with
// ragcore.ErrInvalidParameter; topK above the configured maximum is clamped.
func (ix *Index) Search(ctx context.Context, workspaceID string, query []float32, topK int) ([]ragcore.Match, error) {
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative, got %d", ragcore.ErrInvalidParameter, topK)
	}
	if topK == 0 {
		return []ragcore.Match{}, nil
	}

	p := ix.part(workspaceID)
	p.mu.RLock()
	defer p.mu.RUnlock()

	if topK > p.cfg.MaxTopK {
		topK = p.cfg.MaxTopK
	}
	if len(p.entries) == 0 {
		return []ragcore.Match{}, nil
	}
	if p.dimension != 0 && len(query) != p.dimension {
		return nil, fmt.Errorf("%w: workspace %s expects dimension %d, got query of %d",
			ragcore.ErrDimensionMismatch, workspaceID, p.dimension, len(query))
	}

	type scored struct {
		id    string
		score float64
		seq   int
	}
	candidates := make([]scored, 0, len(p.entries))
	for id, e := range p.entries {
		candidates = append(candidates, scored{id: id, score: cosineSimilarity(query, e.vector), seq: e.seq})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	matches := make([]ragcore.Match, topK)
	for i := 0; i < topK; i++ {
		matches[i] = ragcore.Match{ChunkID: candidates[i].id, Score: candidates[i].score}
	}
	return matches, nil
}

// Metadata returns the metadata stored with a chunk's embedding, or false if
// the chunk is not indexed in the workspace.
func (ix *Index) Metadata(workspaceID, chunkID string) (map[string]any, bool) {
	p := ix.part(workspaceID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[chunkID]
	if !ok {
		return nil, false
	}
	return e.metadata, true
}

// Len returns the number of vectors indexed for the workspace.
func (ix *Index) Len(workspaceID string) int {
	p := ix.part(workspaceID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// cosineSimilarity calculates cosine similarity between two float32 vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
