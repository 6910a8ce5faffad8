package community

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/ragcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	projection ragcore.GraphProjection
	err        error
}

func (s *stubSource) Projection(ctx context.Context, workspaceID string) (ragcore.GraphProjection, error) {
	return s.projection, s.err
}

type detectorFunc func(ctx context.Context, graph ragcore.GraphProjection, resolution float64) ([]Partition, error)

func (f detectorFunc) Detect(ctx context.Context, graph ragcore.GraphProjection, resolution float64) ([]Partition, error) {
	return f(ctx, graph, resolution)
}

func TestService_ClusterAndRead(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&stubSource{projection: twoTriangles()})

	communities, err := svc.Cluster(ctx, "ws1", AlgorithmLeiden, 1.0)
	require.NoError(t, err)
	require.Len(t, communities, 2)
	for _, c := range communities {
		assert.Equal(t, "ws1", c.WorkspaceID)
		assert.Equal(t, 0, c.Level)
		assert.NotEmpty(t, c.ID)
	}

	stored := svc.Communities("ws1")
	require.Len(t, stored, 2)
	assert.ElementsMatch(t, communities, stored)

	level0 := svc.CommunitiesAtLevel("ws1", 0)
	assert.Len(t, level0, 2)
	assert.Empty(t, svc.CommunitiesAtLevel("ws1", 1))
}

func TestService_UnknownAlgorithm(t *testing.T) {
	svc := NewService(&stubSource{projection: twoTriangles()})

	_, err := svc.Cluster(context.Background(), "ws1", Algorithm("label-propagation"), 1.0)
	assert.ErrorIs(t, err, ragcore.ErrInvalidParameter)
}

func TestService_NeverClusteredWorkspaceIsEmpty(t *testing.T) {
	svc := NewService(&stubSource{})
	assert.Empty(t, svc.Communities("ws-unknown"))
}

func TestService_ConcurrentClusterRejected(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	var startedOnce sync.Once
	blocking := detectorFunc(func(ctx context.Context, graph ragcore.GraphProjection, resolution float64) ([]Partition, error) {
		startedOnce.Do(func() { close(started) })
		<-proceed
		return []Partition{{{"a"}}}, nil
	})

	source := &stubSource{projection: ragcore.GraphProjection{Nodes: []string{"a"}}}
	svc := NewService(source, WithDetector(AlgorithmLouvain, blocking))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Cluster(context.Background(), "ws1", AlgorithmLouvain, 1.0)
		done <- err
	}()

	<-started
	_, err := svc.Cluster(context.Background(), "ws1", AlgorithmLouvain, 1.0)
	assert.ErrorIs(t, err, ragcore.ErrClusteringInProgress)

	// A different workspace is not blocked.
	otherDone := make(chan error, 1)
	go func() {
		_, err := svc.Cluster(context.Background(), "ws2", AlgorithmLeiden, 1.0)
		otherDone <- err
	}()
	select {
	case err := <-otherDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("independent workspace clustering blocked")
	}

	close(proceed)
	require.NoError(t, <-done)

	// The slot is released after completion.
	_, err = svc.Cluster(context.Background(), "ws1", AlgorithmLouvain, 1.0)
	assert.NoError(t, err)
}

func TestService_CancelledRunKeepsPreviousSet(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&stubSource{projection: twoTriangles()})

	first, err := svc.Cluster(ctx, "ws1", AlgorithmLeiden, 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancelling := detectorFunc(func(ctx context.Context, graph ragcore.GraphProjection, resolution float64) ([]Partition, error) {
		cancel()
		return []Partition{{{"poisoned"}}}, nil
	})
	WithDetector(AlgorithmLeiden, cancelling)(svc)

	_, err = svc.Cluster(cancelCtx, "ws1", AlgorithmLeiden, 1.0)
	assert.ErrorIs(t, err, context.Canceled)

	// The previous set survives a cancelled run.
	assert.ElementsMatch(t, first, svc.Communities("ws1"))
}

func TestService_SourceErrorPropagates(t *testing.T) {
	wantErr := errors.New("projection unavailable")
	svc := NewService(&stubSource{err: wantErr})

	_, err := svc.Cluster(context.Background(), "ws1", AlgorithmLouvain, 1.0)
	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, svc.Communities("ws1"))
}

func TestService_InvalidResolutionPropagates(t *testing.T) {
	svc := NewService(&stubSource{projection: twoTriangles()})

	_, err := svc.Cluster(context.Background(), "ws1", AlgorithmLouvain, -0.5)
	assert.ErrorIs(t, err, ragcore.ErrInvalidParameter)
}

func TestService_DeleteWorkspace(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&stubSource{projection: twoTriangles()})

	_, err := svc.Cluster(ctx, "ws1", AlgorithmLouvain, 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, svc.Communities("ws1"))

	svc.DeleteWorkspace("ws1")
	assert.Empty(t, svc.Communities("ws1"))
}

func TestService_ReclusterReplacesSet(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&stubSource{projection: twoTriangles()})

	first, err := svc.Cluster(ctx, "ws1", AlgorithmLeiden, 1.0)
	require.NoError(t, err)
	second, err := svc.Cluster(ctx, "ws1", AlgorithmLeiden, 1.0)
	require.NoError(t, err)

	// Fresh ids each run; the stored set is the latest one.
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.ElementsMatch(t, second, svc.Communities("ws1"))
}
