package graphstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return New(ragcore.DefaultWorkspaceConfig())
}

func TestStore_AddEntityMergesOnNormalizedKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	id1, err := s.AddEntity(ctx, "ws1", "Alice", "Person", "chunk-1")
	require.NoError(t, err)

	// Same identity modulo case and whitespace merges into the same entity.
	id2, err := s.AddEntity(ctx, "ws1", "  alice ", "PERSON", "chunk-2")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	entity, err := s.Entity(ctx, "ws1", id1)
	require.NoError(t, err)
	assert.Equal(t, "alice", entity.Name)
	assert.Equal(t, "person", entity.Type)
	assert.Equal(t, []string{"chunk-1", "chunk-2"}, entity.SourceChunkIDs)
}

func TestStore_AddEntityProvenanceIsASet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	id, err := s.AddEntity(ctx, "ws1", "Alice", "Person", "chunk-1")
	require.NoError(t, err)
	_, err = s.AddEntity(ctx, "ws1", "Alice", "Person", "chunk-1")
	require.NoError(t, err)

	entity, err := s.Entity(ctx, "ws1", id)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk-1"}, entity.SourceChunkIDs)
}

func TestStore_DifferentTypeIsDifferentEntity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	personID, err := s.AddEntity(ctx, "ws1", "Mercury", "Planet", "c1")
	require.NoError(t, err)
	elementID, err := s.AddEntity(ctx, "ws1", "Mercury", "Element", "c1")
	require.NoError(t, err)
	assert.NotEqual(t, personID, elementID)
}

func TestStore_AddRelationshipUnknownEntity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	aliceID, err := s.AddEntity(ctx, "ws1", "Alice", "Person", "c1")
	require.NoError(t, err)

	_, err = s.AddRelationship(ctx, "ws1", aliceID, "missing", "manages", 0.9, "c1")
	assert.ErrorIs(t, err, ragcore.ErrUnknownEntity)

	_, err = s.AddRelationship(ctx, "ws1", "missing", aliceID, "manages", 0.9, "c1")
	assert.ErrorIs(t, err, ragcore.ErrUnknownEntity)
}

func TestStore_AddRelationshipBelowThresholdDroppedAndLogged(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	s := New(ragcore.DefaultWorkspaceConfig(), WithLogger(log.NewCustomLogger(&buf, log.LogLevelDebug)))

	aliceID, _ := s.AddEntity(ctx, "ws1", "Alice", "Person", "c1")
	bobID, _ := s.AddEntity(ctx, "ws1", "Bob", "Person", "c1")

	relID, err := s.AddRelationship(ctx, "ws1", aliceID, bobID, "manages", 0.2, "c1")
	require.NoError(t, err)
	assert.Empty(t, relID)
	assert.Contains(t, buf.String(), "dropped relationship")

	// The dropped edge must not be traversable.
	neighbors, err := s.Neighbors(ctx, "ws1", aliceID, 1)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestStore_NeighborsOneHop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	aliceID, _ := s.AddEntity(ctx, "ws1", "Alice", "Person", "c1")
	bobID, _ := s.AddEntity(ctx, "ws1", "Bob", "Person", "c1")
	_, err := s.AddRelationship(ctx, "ws1", aliceID, bobID, "manages", 0.9, "c1")
	require.NoError(t, err)

	neighbors, err := s.Neighbors(ctx, "ws1", aliceID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{bobID}, neighbors)

	// Directed edge, undirected expansion.
	neighbors, err = s.Neighbors(ctx, "ws1", bobID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{aliceID}, neighbors)
}

func TestStore_NeighborsTwoHops(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	aliceID, _ := s.AddEntity(ctx, "ws1", "Alice", "Person", "c1")
	bobID, _ := s.AddEntity(ctx, "ws1", "Bob", "Person", "c1")
	carolID, _ := s.AddEntity(ctx, "ws1", "Carol", "Person", "c2")
	_, err := s.AddRelationship(ctx, "ws1", aliceID, bobID, "manages", 0.9, "c1")
	require.NoError(t, err)
	_, err = s.AddRelationship(ctx, "ws1", bobID, carolID, "manages", 0.9, "c2")
	require.NoError(t, err)

	oneHop, err := s.Neighbors(ctx, "ws1", aliceID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{bobID}, oneHop)

	twoHops, err := s.Neighbors(ctx, "ws1", aliceID, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bobID, carolID}, twoHops)
}

func TestStore_NeighborsZeroHopsAndCycles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	aID, _ := s.AddEntity(ctx, "ws1", "A", "node", "c1")
	bID, _ := s.AddEntity(ctx, "ws1", "B", "node", "c1")
	cID, _ := s.AddEntity(ctx, "ws1", "C", "node", "c1")
	s.AddRelationship(ctx, "ws1", aID, bID, "linked", 0.9, "c1")
	s.AddRelationship(ctx, "ws1", bID, cID, "linked", 0.9, "c1")
	s.AddRelationship(ctx, "ws1", cID, aID, "linked", 0.9, "c1")

	empty, err := s.Neighbors(ctx, "ws1", aID, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// The cycle must terminate and yield each entity once.
	all, err := s.Neighbors(ctx, "ws1", aID, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bID, cID}, all)
}

func TestStore_NeighborsTypeFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	aID, _ := s.AddEntity(ctx, "ws1", "A", "node", "c1")
	bID, _ := s.AddEntity(ctx, "ws1", "B", "node", "c1")
	cID, _ := s.AddEntity(ctx, "ws1", "C", "node", "c1")
	s.AddRelationship(ctx, "ws1", aID, bID, "manages", 0.9, "c1")
	s.AddRelationship(ctx, "ws1", aID, cID, "mentions", 0.9, "c1")

	manages, err := s.Neighbors(ctx, "ws1", aID, 1, "manages")
	require.NoError(t, err)
	assert.Equal(t, []string{bID}, manages)
}

func TestStore_Subgraph(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	aID, _ := s.AddEntity(ctx, "ws1", "A", "node", "c1")
	bID, _ := s.AddEntity(ctx, "ws1", "B", "node", "c1")
	cID, _ := s.AddEntity(ctx, "ws1", "C", "node", "c1")
	s.AddRelationship(ctx, "ws1", aID, bID, "linked", 0.9, "c1")
	s.AddRelationship(ctx, "ws1", bID, cID, "linked", 0.9, "c1")

	entities, rels, err := s.Subgraph(ctx, "ws1", []string{aID, bID})
	require.NoError(t, err)
	assert.Len(t, entities, 2)
	// Only the a-b relationship has both endpoints in the set.
	require.Len(t, rels, 1)
	assert.Equal(t, aID, rels[0].SourceID)
	assert.Equal(t, bID, rels[0].TargetID)
}

func TestStore_ProjectionSumsParallelEdges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	aID, _ := s.AddEntity(ctx, "ws1", "A", "node", "c1")
	bID, _ := s.AddEntity(ctx, "ws1", "B", "node", "c1")
	s.AddRelationship(ctx, "ws1", aID, bID, "manages", 0.9, "c1")
	s.AddRelationship(ctx, "ws1", bID, aID, "reports_to", 0.6, "c1")

	projection, err := s.Projection(ctx, "ws1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{aID, bID}, projection.Nodes)
	require.Len(t, projection.Edges, 1)
	assert.InDelta(t, 1.5, projection.Edges[0].Weight, 1e-9)
}

func TestStore_WorkspaceIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	ws1ID, err := s.AddEntity(ctx, "ws1", "Alice", "Person", "c1")
	require.NoError(t, err)
	ws2ID, err := s.AddEntity(ctx, "ws2", "Alice", "Person", "c1")
	require.NoError(t, err)

	// The same identity in two workspaces must not merge.
	assert.NotEqual(t, ws1ID, ws2ID)

	_, err = s.Entity(ctx, "ws2", ws1ID)
	assert.ErrorIs(t, err, ragcore.ErrUnknownEntity)

	_, err = s.AddRelationship(ctx, "ws2", ws1ID, ws2ID, "knows", 0.9, "c1")
	assert.ErrorIs(t, err, ragcore.ErrUnknownEntity)
}

func TestStore_Resolve(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	id, _ := s.AddEntity(ctx, "ws1", "Alice", "Person", "c1")

	resolved, ok := s.Resolve(ctx, "ws1", "ALICE", "person")
	assert.True(t, ok)
	assert.Equal(t, id, resolved)

	_, ok = s.Resolve(ctx, "ws1", "Bob", "person")
	assert.False(t, ok)

	byName := s.ResolveByName(ctx, "ws1", "alice")
	assert.Equal(t, []string{id}, byName)
}

func TestStore_DeleteWorkspace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	id, _ := s.AddEntity(ctx, "ws1", "Alice", "Person", "c1")
	require.NoError(t, s.DeleteWorkspace(ctx, "ws1"))

	_, err := s.Entity(ctx, "ws1", id)
	assert.ErrorIs(t, err, ragcore.ErrUnknownEntity)
	assert.Equal(t, 0, s.EntityCount("ws1"))

	require.NoError(t, s.DeleteWorkspace(ctx, "never-existed"))
}
