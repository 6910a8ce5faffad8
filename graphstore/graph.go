package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/log"
)

// Store is an in-memory knowledge graph store partitioned per workspace.
// Entities sharing a normalized (name, type) key are merged on insert;
// relationships below the workspace confidence threshold are dropped at
// creation time. All operations are atomic per workspace: a concurrent
// reader never observes a half-applied entity merge.
type Store struct {
	mu       sync.RWMutex
	defaults ragcore.WorkspaceConfig
	logger   log.Logger
	graphs   map[string]*workspaceGraph
}

// workspaceGraph holds one workspace's entities and relationships. adjacency
// keeps relationship ids per endpoint in insertion order so traversals are
// deterministic.
type workspaceGraph struct {
	mu        sync.RWMutex
	cfg       ragcore.WorkspaceConfig
	entities  map[string]*ragcore.Entity
	keyIndex  map[string]string
	rels      map[string]*ragcore.Relationship
	relOrder  []string
	adjacency map[string][]string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for dropped-relationship reporting.
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store using cfg as the default workspace configuration.
func New(cfg ragcore.WorkspaceConfig, opts ...Option) *Store {
	s := &Store{
		defaults: cfg.Normalize(),
		logger:   log.GetDefaultLogger(),
		graphs:   make(map[string]*workspaceGraph),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfigureWorkspace sets a workspace-specific configuration.
func (s *Store) ConfigureWorkspace(workspaceID string, cfg ragcore.WorkspaceConfig) {
	g := s.graph(workspaceID)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg.Normalize()
}

func (s *Store) graph(workspaceID string) *workspaceGraph {
	s.mu.RLock()
	g, ok := s.graphs[workspaceID]
	s.mu.RUnlock()
	if ok {
		return g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok = s.graphs[workspaceID]; ok {
		return g
	}
	g = &workspaceGraph{
		cfg:       s.defaults,
		entities:  make(map[string]*ragcore.Entity),
		keyIndex:  make(map[string]string),
		rels:      make(map[string]*ragcore.Relationship),
		adjacency: make(map[string][]string),
	}
	s.graphs[workspaceID] = g
	return g
}

// normalizeKey builds the per-workspace identity key for entity merging.
func normalizeKey(name, typ string) (normName, normType, key string) {
	normName = strings.ToLower(strings.TrimSpace(name))
	normType = strings.ToLower(strings.TrimSpace(typ))
	return normName, normType, normName + "\x00" + normType
}

// AddEntity creates a new entity or merges into the existing one sharing the
// normalized (name, type) key, appending sourceChunkID to its provenance set.
// It returns the (possibly pre-existing) entity id. Calling it twice with the
// same normalized identity yields the same id; the same chunk is never
// recorded twice.
func (s *Store) AddEntity(ctx context.Context, workspaceID, name, typ, sourceChunkID string) (string, error) {
	normName, normType, key := normalizeKey(name, typ)
	if normName == "" {
		return "", fmt.Errorf("%w: entity name must not be empty", ragcore.ErrInvalidParameter)
	}

	g := s.graph(workspaceID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.keyIndex[key]; ok {
		entity := g.entities[id]
		if sourceChunkID != "" && !contains(entity.SourceChunkIDs, sourceChunkID) {
			entity.SourceChunkIDs = append(entity.SourceChunkIDs, sourceChunkID)
		}
		return id, nil
	}

	id := uuid.NewString()
	entity := &ragcore.Entity{
		ID:          id,
		WorkspaceID: workspaceID,
		Name:        normName,
		Type:        normType,
	}
	if sourceChunkID != "" {
		entity.SourceChunkIDs = []string{sourceChunkID}
	}
	g.entities[id] = entity
	g.keyIndex[key] = id
	return id, nil
}

// AddRelationship adds a directed typed edge between two existing entities.
// It fails with ragcore.ErrUnknownEntity if either endpoint does not exist in
// the workspace. Relationships below the workspace confidence threshold are
// silently dropped (logged, nil error, empty id returned).
func (s *Store) AddRelationship(ctx context.Context, workspaceID, sourceID, targetID, typ string, confidence float64, sourceChunkID string) (string, error) {
	g := s.graph(workspaceID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[sourceID]; !ok {
		return "", fmt.Errorf("%w: source %s in workspace %s", ragcore.ErrUnknownEntity, sourceID, workspaceID)
	}
	if _, ok := g.entities[targetID]; !ok {
		return "", fmt.Errorf("%w: target %s in workspace %s", ragcore.ErrUnknownEntity, targetID, workspaceID)
	}

	if confidence < g.cfg.ConfidenceThreshold {
		s.logger.Debug("workspace %s: dropped relationship %s-[%s]->%s, confidence %.2f below threshold %.2f",
			workspaceID, sourceID, typ, targetID, confidence, g.cfg.ConfidenceThreshold)
		return "", nil
	}

	id := uuid.NewString()
	g.rels[id] = &ragcore.Relationship{
		ID:            id,
		WorkspaceID:   workspaceID,
		SourceID:      sourceID,
		TargetID:      targetID,
		Type:          strings.ToLower(strings.TrimSpace(typ)),
		Confidence:    confidence,
		SourceChunkID: sourceChunkID,
	}
	g.relOrder = append(g.relOrder, id)
	g.adjacency[sourceID] = append(g.adjacency[sourceID], id)
	if targetID != sourceID {
		g.adjacency[targetID] = append(g.adjacency[targetID], id)
	}
	return id, nil
}

// Entity returns the entity with the given id.
func (s *Store) Entity(ctx context.Context, workspaceID, entityID string) (*ragcore.Entity, error) {
	g := s.graph(workspaceID)
	g.mu.RLock()
	defer g.mu.RUnlock()

	entity, ok := g.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s in workspace %s", ragcore.ErrUnknownEntity, entityID, workspaceID)
	}
	copied := *entity
	copied.SourceChunkIDs = append([]string(nil), entity.SourceChunkIDs...)
	return &copied, nil
}

// Resolve looks up an entity id by its normalized (name, type) identity.
func (s *Store) Resolve(ctx context.Context, workspaceID, name, typ string) (string, bool) {
	_, _, key := normalizeKey(name, typ)
	g := s.graph(workspaceID)
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.keyIndex[key]
	return id, ok
}

// ResolveByName looks up entity ids matching a normalized name across all
// types, in no particular order.
func (s *Store) ResolveByName(ctx context.Context, workspaceID, name string) []string {
	normName := strings.ToLower(strings.TrimSpace(name))
	g := s.graph(workspaceID)
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for key, id := range g.keyIndex {
		if n, _, ok := strings.Cut(key, "\x00"); ok && n == normName {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Neighbors performs a breadth-first expansion from entityID up to maxHops
// hops, optionally restricted to the given relationship types. Edges are
// followed in both directions. The start entity is not included. A maxHops of
// 0 returns an empty set; cycles are handled with a visited set. The returned
// slice is in deterministic BFS order and free of duplicates.
func (s *Store) Neighbors(ctx context.Context, workspaceID, entityID string, maxHops int, relTypes ...string) ([]string, error) {
	g := s.graph(workspaceID)
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.entities[entityID]; !ok {
		return nil, fmt.Errorf("%w: %s in workspace %s", ragcore.ErrUnknownEntity, entityID, workspaceID)
	}
	if maxHops <= 0 {
		return []string{}, nil
	}

	typeFilter := make(map[string]bool, len(relTypes))
	for _, t := range relTypes {
		typeFilter[strings.ToLower(strings.TrimSpace(t))] = true
	}

	visited := map[string]bool{entityID: true}
	result := make([]string, 0)
	frontier := []string{entityID}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		next := make([]string, 0)
		for _, current := range frontier {
			for _, relID := range g.adjacency[current] {
				rel := g.rels[relID]
				if len(typeFilter) > 0 && !typeFilter[rel.Type] {
					continue
				}
				neighbor := rel.TargetID
				if neighbor == current {
					neighbor = rel.SourceID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				result = append(result, neighbor)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return result, nil
}

// Subgraph returns the subgraph induced by entityIDs: the named entities plus
// every relationship whose both endpoints are in the set.
func (s *Store) Subgraph(ctx context.Context, workspaceID string, entityIDs []string) ([]ragcore.Entity, []ragcore.Relationship, error) {
	g := s.graph(workspaceID)
	g.mu.RLock()
	defer g.mu.RUnlock()

	inSet := make(map[string]bool, len(entityIDs))
	entities := make([]ragcore.Entity, 0, len(entityIDs))
	for _, id := range entityIDs {
		entity, ok := g.entities[id]
		if !ok || inSet[id] {
			continue
		}
		inSet[id] = true
		copied := *entity
		copied.SourceChunkIDs = append([]string(nil), entity.SourceChunkIDs...)
		entities = append(entities, copied)
	}

	rels := make([]ragcore.Relationship, 0)
	for _, relID := range g.relOrder {
		rel := g.rels[relID]
		if inSet[rel.SourceID] && inSet[rel.TargetID] {
			rels = append(rels, *rel)
		}
	}
	return entities, rels, nil
}

// Projection builds the undirected weighted projection of the workspace's
// relationship graph: every entity becomes a node and parallel edges between
// a pair collapse into one edge whose weight is the summed confidence.
func (s *Store) Projection(ctx context.Context, workspaceID string) (ragcore.GraphProjection, error) {
	g := s.graph(workspaceID)
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]string, 0, len(g.entities))
	for id := range g.entities {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	type pair struct{ a, b string }
	weights := make(map[pair]float64)
	order := make([]pair, 0)
	for _, relID := range g.relOrder {
		rel := g.rels[relID]
		a, b := rel.SourceID, rel.TargetID
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		p := pair{a, b}
		if _, ok := weights[p]; !ok {
			order = append(order, p)
		}
		weights[p] += rel.Confidence
	}

	edges := make([]ragcore.ProjectedEdge, 0, len(order))
	for _, p := range order {
		edges = append(edges, ragcore.ProjectedEdge{Source: p.a, Target: p.b, Weight: weights[p]})
	}
	return ragcore.GraphProjection{Nodes: nodes, Edges: edges}, nil
}

// EntityCount returns the number of entities in the workspace.
func (s *Store) EntityCount(workspaceID string) int {
	g := s.graph(workspaceID)
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}

// DeleteWorkspace removes every entity and relationship of the workspace.
// Deleting an unknown workspace is a no-op.
func (s *Store) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs, workspaceID)
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
