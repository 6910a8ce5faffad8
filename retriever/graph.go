package retriever

import (
	"context"
	"errors"
	"sort"

	"github.com/smallnest/ragcore"
)

// Graph is the knowledge graph surface the graph retriever consumes.
// *graphstore.Store satisfies it.
type Graph interface {
	Neighbors(ctx context.Context, workspaceID, entityID string, maxHops int, relTypes ...string) ([]string, error)
	Entity(ctx context.Context, workspaceID, entityID string) (*ragcore.Entity, error)
}

// CommunitySource supplies the active community set of a workspace.
// *community.Service satisfies it.
type CommunitySource interface {
	CommunitiesAtLevel(workspaceID string, level int) []ragcore.Community
}

// GraphRetriever implements community-ranked graph retrieval: query entities
// are expanded k hops, communities are ranked by how densely the expansion
// hits them, and the top communities' member entities contribute their source
// chunks.
type GraphRetriever struct {
	graph          Graph
	communities    CommunitySource
	chunks         ChunkFetcher
	expansionLimit int
	level          int
}

// GraphRetrieverOptions configures the retriever. Zero values are replaced
// with defaults.
type GraphRetrieverOptions struct {
	// ExpansionLimit caps the candidate entity set; expansion past it is
	// truncated deterministically in BFS order. Default 500.
	ExpansionLimit int
	// Level selects the community hierarchy level to rank. Default 0, the
	// finest.
	Level int
}

// NewGraphRetriever creates a graph retriever.
func NewGraphRetriever(graph Graph, communities CommunitySource, chunks ChunkFetcher, opts GraphRetrieverOptions) *GraphRetriever {
	if opts.ExpansionLimit <= 0 {
		opts.ExpansionLimit = 500
	}
	return &GraphRetriever{
		graph:          graph,
		communities:    communities,
		chunks:         chunks,
		expansionLimit: opts.ExpansionLimit,
		level:          opts.Level,
	}
}

// rankedCommunity pairs a community with its match density against the
// candidate set.
type rankedCommunity struct {
	community ragcore.Community
	density   float64
}

// Retrieve runs the graph retrieval algorithm for a set of already-resolved
// query entity ids. An empty query set returns an empty result, nil error:
// "no graph match" is an outcome, not a failure.
func (r *GraphRetriever) Retrieve(ctx context.Context, workspaceID string, queryEntities []string, kHop, topCommunities int) (*ragcore.RetrievalResult, error) {
	if len(queryEntities) == 0 {
		return &ragcore.RetrievalResult{}, nil
	}
	if kHop < 0 || topCommunities < 0 {
		return nil, ragcore.ErrInvalidParameter
	}

	candidates, err := r.expand(ctx, workspaceID, queryEntities, kHop)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &ragcore.RetrievalResult{}, nil
	}

	ranked := r.rankCommunities(workspaceID, candidates)
	if len(ranked) > topCommunities {
		ranked = ranked[:topCommunities]
	}

	return r.collectChunks(ctx, workspaceID, ranked)
}

// expand unions the k-hop neighborhoods of the query entities, seeds first,
// truncating deterministically at the expansion limit.
func (r *GraphRetriever) expand(ctx context.Context, workspaceID string, queryEntities []string, kHop int) (map[string]bool, error) {
	candidates := make(map[string]bool)
	add := func(id string) bool {
		if !candidates[id] {
			if len(candidates) >= r.expansionLimit {
				return false
			}
			candidates[id] = true
		}
		return true
	}

	for _, seed := range queryEntities {
		// Seeds that no longer resolve are skipped, not fatal.
		if _, err := r.graph.Entity(ctx, workspaceID, seed); err != nil {
			if errors.Is(err, ragcore.ErrUnknownEntity) {
				continue
			}
			return nil, err
		}
		if !add(seed) {
			return candidates, nil
		}

		neighbors, err := r.graph.Neighbors(ctx, workspaceID, seed, kHop)
		if err != nil {
			return nil, err
		}
		for _, neighbor := range neighbors {
			if !add(neighbor) {
				return candidates, nil
			}
		}
	}
	return candidates, nil
}

// rankCommunities orders communities by match density descending, then size
// ascending, then id, keeping only those the candidate set touches.
func (r *GraphRetriever) rankCommunities(workspaceID string, candidates map[string]bool) []rankedCommunity {
	ranked := make([]rankedCommunity, 0)
	for _, community := range r.communities.CommunitiesAtLevel(workspaceID, r.level) {
		if community.Size() == 0 {
			continue
		}
		intersection := 0
		for _, member := range community.MemberIDs {
			if candidates[member] {
				intersection++
			}
		}
		if intersection == 0 {
			continue
		}
		ranked = append(ranked, rankedCommunity{
			community: community,
			density:   float64(intersection) / float64(community.Size()),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].density != ranked[j].density {
			return ranked[i].density > ranked[j].density
		}
		if ranked[i].community.Size() != ranked[j].community.Size() {
			return ranked[i].community.Size() < ranked[j].community.Size()
		}
		return ranked[i].community.ID < ranked[j].community.ID
	})
	return ranked
}

// collectChunks pulls the member entities' source chunks of the selected
// communities in rank order, deduplicating on first appearance.
func (r *GraphRetriever) collectChunks(ctx context.Context, workspaceID string, ranked []rankedCommunity) (*ragcore.RetrievalResult, error) {
	type provenance struct {
		score    float64
		entities []string
	}
	seen := make(map[string]*provenance)
	order := make([]string, 0)

	for _, rc := range ranked {
		for _, memberID := range rc.community.MemberIDs {
			entity, err := r.graph.Entity(ctx, workspaceID, memberID)
			if err != nil {
				if errors.Is(err, ragcore.ErrUnknownEntity) {
					// Entity removed since clustering; stale member.
					continue
				}
				return nil, err
			}
			for _, chunkID := range entity.SourceChunkIDs {
				p, ok := seen[chunkID]
				if !ok {
					p = &provenance{score: rc.density}
					seen[chunkID] = p
					order = append(order, chunkID)
				}
				if !contains(p.entities, entity.Name) {
					p.entities = append(p.entities, entity.Name)
				}
			}
		}
	}

	if len(order) == 0 {
		return &ragcore.RetrievalResult{}, nil
	}

	records, err := r.chunks.GetChunks(ctx, workspaceID, order)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]ragcore.Chunk, len(records))
	for _, chunk := range records {
		byID[chunk.ID] = chunk
	}

	result := &ragcore.RetrievalResult{Chunks: make([]ragcore.ScoredChunk, 0, len(order))}
	for _, chunkID := range order {
		chunk, stored := byID[chunkID]
		if !stored {
			continue
		}
		p := seen[chunkID]
		result.Chunks = append(result.Chunks, ragcore.ScoredChunk{
			ChunkID:    chunkID,
			Text:       chunk.Text,
			Score:      p.score,
			SourceRefs: p.entities,
		})
	}
	return result, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Resolver maps entity names to entity ids. *graphstore.Store satisfies it.
type Resolver interface {
	ResolveByName(ctx context.Context, workspaceID, name string) []string
}

// GraphStrategy is the query-text front of the graph retriever: it extracts
// entities from the query, resolves them against the workspace graph and
// delegates to GraphRetriever.
type GraphStrategy struct {
	extractor      ragcore.Extractor
	resolver       Resolver
	retriever      *GraphRetriever
	kHop           int
	topCommunities int
}

// GraphStrategyOptions configures the strategy. Zero values are replaced
// with defaults.
type GraphStrategyOptions struct {
	KHop           int // Default 2
	TopCommunities int // Default 3
}

// NewGraphStrategy creates a graph retrieval strategy.
func NewGraphStrategy(extractor ragcore.Extractor, resolver Resolver, retriever *GraphRetriever, opts GraphStrategyOptions) *GraphStrategy {
	if opts.KHop <= 0 {
		opts.KHop = 2
	}
	if opts.TopCommunities <= 0 {
		opts.TopCommunities = 3
	}
	return &GraphStrategy{
		extractor:      extractor,
		resolver:       resolver,
		retriever:      retriever,
		kHop:           opts.KHop,
		topCommunities: opts.TopCommunities,
	}
}

var _ Strategy = (*GraphStrategy)(nil)

// Retrieve extracts query entities and runs graph retrieval. A query whose
// text yields no known entities returns an empty result, nil error.
func (s *GraphStrategy) Retrieve(ctx context.Context, workspaceID, query string) (*ragcore.RetrievalResult, error) {
	extracted, _, err := s.extractor.Extract(ctx, query)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	queryEntities := make([]string, 0)
	for _, entity := range extracted {
		for _, id := range s.resolver.ResolveByName(ctx, workspaceID, entity.Name) {
			if !seen[id] {
				seen[id] = true
				queryEntities = append(queryEntities, id)
			}
		}
	}

	return s.retriever.Retrieve(ctx, workspaceID, queryEntities, s.kHop, s.topCommunities)
}
