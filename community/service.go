package community

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/log"
)

// Algorithm selects the detection policy for a clustering run.
type Algorithm string

const (
	// AlgorithmLouvain is greedy modularity optimization.
	AlgorithmLouvain Algorithm = "louvain"
	// AlgorithmLeiden is Louvain plus a refinement phase guaranteeing
	// internally connected communities.
	AlgorithmLeiden Algorithm = "leiden"
)

// GraphSource supplies the undirected projection a clustering run operates
// on. *graphstore.Store satisfies it.
type GraphSource interface {
	Projection(ctx context.Context, workspaceID string) (ragcore.GraphProjection, error)
}

// Service runs community detection per workspace and owns the resulting
// community sets. At most one clustering run per workspace is admitted at a
// time; concurrent attempts fail fast with ErrClusteringInProgress. Reads
// always observe a complete set: a run builds its result off to the side and
// swaps it in as the last step, so a failed or cancelled run leaves the
// previous set untouched.
type Service struct {
	source    GraphSource
	detectors map[Algorithm]Detector
	logger    log.Logger

	mu          sync.RWMutex
	inFlight    map[string]bool
	communities map[string][]ragcore.Community
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger log.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDetector registers or replaces the detector for an algorithm.
func WithDetector(algorithm Algorithm, detector Detector) ServiceOption {
	return func(s *Service) {
		if detector != nil {
			s.detectors[algorithm] = detector
		}
	}
}

// NewService creates a community service over the given graph source, with
// the Louvain and Leiden detectors registered under their default options.
func NewService(source GraphSource, opts ...ServiceOption) *Service {
	s := &Service{
		source: source,
		detectors: map[Algorithm]Detector{
			AlgorithmLouvain: NewLouvainDetector(LouvainOptions{}),
			AlgorithmLeiden:  NewLeidenDetector(LouvainOptions{}),
		},
		logger:      log.GetDefaultLogger(),
		inFlight:    make(map[string]bool),
		communities: make(map[string][]ragcore.Community),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cluster recomputes the workspace's community set with the chosen algorithm
// at the given resolution and installs it, replacing any previous set. It
// returns the new set.
func (s *Service) Cluster(ctx context.Context, workspaceID string, algorithm Algorithm, resolution float64) ([]ragcore.Community, error) {
	detector, ok := s.detectors[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: unknown clustering algorithm %q", ragcore.ErrInvalidParameter, algorithm)
	}

	if err := s.acquire(workspaceID); err != nil {
		return nil, err
	}
	defer s.release(workspaceID)

	projection, err := s.source.Projection(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load graph projection: %w", err)
	}

	levels, err := detector.Detect(ctx, projection, resolution)
	if err != nil {
		return nil, err
	}

	fresh := make([]ragcore.Community, 0)
	for level, partition := range levels {
		for _, memberIDs := range partition {
			fresh = append(fresh, ragcore.Community{
				ID:          uuid.NewString(),
				WorkspaceID: workspaceID,
				Level:       level,
				MemberIDs:   memberIDs,
			})
		}
	}

	// A cancelled run must not replace the previous set.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.communities[workspaceID] = fresh
	s.mu.Unlock()

	s.logger.Info("clustered workspace %s with %s: %d communities across %d levels", workspaceID, algorithm, len(fresh), len(levels))
	return s.snapshot(fresh), nil
}

// Communities returns the current community set of a workspace across all
// levels. A workspace that has never been clustered yields an empty set.
func (s *Service) Communities(workspaceID string) []ragcore.Community {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(s.communities[workspaceID])
}

// CommunitiesAtLevel returns the communities of one hierarchy level. Level 0
// is the finest.
func (s *Service) CommunitiesAtLevel(workspaceID string, level int) []ragcore.Community {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ragcore.Community, 0)
	for _, c := range s.communities[workspaceID] {
		if c.Level == level {
			out = append(out, cloneCommunity(c))
		}
	}
	return out
}

// DeleteWorkspace drops the workspace's community set.
func (s *Service) DeleteWorkspace(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.communities, workspaceID)
}

func (s *Service) acquire(workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[workspaceID] {
		return fmt.Errorf("%w: workspace %s", ragcore.ErrClusteringInProgress, workspaceID)
	}
	s.inFlight[workspaceID] = true
	return nil
}

func (s *Service) release(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, workspaceID)
}

func (s *Service) snapshot(communities []ragcore.Community) []ragcore.Community {
	out := make([]ragcore.Community, 0, len(communities))
	for _, c := range communities {
		out = append(out, cloneCommunity(c))
	}
	return out
}

func cloneCommunity(c ragcore.Community) ragcore.Community {
	c.MemberIDs = append([]string(nil), c.MemberIDs...)
	return c
}
