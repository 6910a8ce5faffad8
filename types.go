package ragcore

import "context"

// Chunk is a bounded span of document text, the unit of retrieval.
// Chunks are immutable once created and owned by the document they were
// derived from; deleting the document deletes its chunks.
type Chunk struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	DocumentID  string `json:"document_id"`
	Text        string `json:"text"`
	// Position is unique within a document and monotonically increasing.
	Position   int `json:"position"`
	TokenCount int `json:"token_count"`
}

// Entity is a node of the knowledge graph extracted from text. Entities
// sharing the same normalized (name, type) within a workspace are merged on
// insert; SourceChunkIDs accumulates provenance across merges without
// duplicates, in first-seen order.
type Entity struct {
	ID             string   `json:"id"`
	WorkspaceID    string   `json:"workspace_id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	SourceChunkIDs []string `json:"source_chunk_ids"`
}

// Relationship is a directed, typed edge between two entities. Multiple
// relationship types may exist between the same pair. Relationships below the
// workspace confidence threshold are dropped at creation time.
type Relationship struct {
	ID            string  `json:"id"`
	WorkspaceID   string  `json:"workspace_id"`
	SourceID      string  `json:"source_id"`
	TargetID      string  `json:"target_id"`
	Type          string  `json:"type"`
	Confidence    float64 `json:"confidence"`
	SourceChunkID string  `json:"source_chunk_id"`
}

// Community is a cluster of densely interconnected entities produced by a
// clustering pass. Communities at the same level partition the entity set.
// Level 0 is the finest granularity.
type Community struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspace_id"`
	Level       int      `json:"level"`
	MemberIDs   []string `json:"member_ids"`
}

// Size returns the number of member entities.
func (c *Community) Size() int { return len(c.MemberIDs) }

// ScoredChunk is one ranked element of a retrieval result.
type ScoredChunk struct {
	ChunkID    string   `json:"chunk_id"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
	SourceRefs []string `json:"source_refs"`
}

// RetrievalResult is the ordered, transient output of a retrieval strategy.
// It is produced per query and never persisted.
type RetrievalResult struct {
	Chunks []ScoredChunk `json:"chunks"`
}

// Empty reports whether the result carries no chunks. An empty result is a
// valid outcome ("no graph match"), not an error.
func (r *RetrievalResult) Empty() bool { return r == nil || len(r.Chunks) == 0 }

// PromptContext is the bounded set of retrieved text handed to the answer
// generator, plus the citation references for display.
type PromptContext struct {
	Chunks []ScoredChunk `json:"chunks"`
	// TokenCount is the estimated token total of the included chunks.
	TokenCount int `json:"token_count"`
	// DroppedChunks counts retrieval-result chunks excluded by the budget.
	DroppedChunks int      `json:"dropped_chunks"`
	Citations     []string `json:"citations"`
}

// ProjectedEdge is one undirected edge of a graph projection. Weight is the
// relationship confidence summed over parallel edges between the pair.
type ProjectedEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// GraphProjection is the undirected weighted projection of a workspace's
// relationship graph, the input to community detection.
type GraphProjection struct {
	Nodes []string        `json:"nodes"`
	Edges []ProjectedEdge `json:"edges"`
}

// Match is a single vector search hit.
type Match struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// Embedder maps text to fixed-dimension vectors. Implementations call an
// external model; batch size and model choice are configuration, not core
// logic.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// ExtractedEntity is an entity mention found in text by an Extractor.
type ExtractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExtractedRelationship is a directed relationship found in text by an
// Extractor. Source and Target refer to extracted entity names.
type ExtractedRelationship struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Extractor maps text to typed entities and directed typed relationships.
// The extraction backend (NER model vs. LLM prompt) is swappable.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]ExtractedEntity, []ExtractedRelationship, error)
}

// TokenCounter estimates the token count of a text.
type TokenCounter interface {
	Count(text string) int
}
