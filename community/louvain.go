package community

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/smallnest/ragcore"
)

// LouvainOptions configures the Louvain detector. Zero values are replaced
// with defaults.
type LouvainOptions struct {
	// Seed makes detection deterministic. Defaults to 1.
	Seed int64
	// MaxIterations bounds each local-moving pass. Defaults to 100.
	MaxIterations int
	// MaxLevels bounds the aggregation hierarchy depth. Defaults to 10.
	MaxLevels int
}

func (o LouvainOptions) withDefaults() LouvainOptions {
	if o.Seed == 0 {
		o.Seed = 1
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 100
	}
	if o.MaxLevels <= 0 {
		o.MaxLevels = 10
	}
	return o
}

// LouvainDetector implements greedy modularity optimization. Nodes start in
// singleton communities and are repeatedly moved to the neighboring community
// with the highest modularity gain; the graph is then aggregated and the pass
// repeats, producing one hierarchy level per pass. Results are deterministic
// for a fixed seed. Nodes are only ever moved into communities they have an
// edge to, so level-0 communities never span disconnected components.
type LouvainDetector struct {
	opts LouvainOptions
}

// NewLouvainDetector creates a Louvain detector.
func NewLouvainDetector(opts LouvainOptions) *LouvainDetector {
	return &LouvainDetector{opts: opts.withDefaults()}
}

var _ Detector = (*LouvainDetector)(nil)

// Detect runs Louvain community detection.
func (d *LouvainDetector) Detect(ctx context.Context, graph ragcore.GraphProjection, resolution float64) ([]Partition, error) {
	return detectLevels(ctx, graph, resolution, d.opts, false)
}

// detectLevels is the shared Louvain/Leiden driver. When refine is true the
// Leiden refinement phase splits internally disconnected communities after
// each local-moving pass.
func detectLevels(ctx context.Context, graph ragcore.GraphProjection, resolution float64, opts LouvainOptions, refine bool) ([]Partition, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("%w: resolution must be positive, got %g", ragcore.ErrInvalidParameter, resolution)
	}

	adj := buildAdjacency(graph)
	if len(adj) == 0 {
		return []Partition{}, nil
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	// members maps each (super)node to the original entities it stands for.
	members := make(map[string][]string, len(adj))
	for node := range adj {
		members[node] = []string{node}
	}

	var levels []Partition
	for level := 0; level < opts.MaxLevels; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st := newMoveState(adj, resolution)
		improved := st.localMove(rng, opts.MaxIterations)
		if level > 0 && !improved {
			// The coarser pass changed nothing; the previous level already
			// recorded this partition.
			break
		}

		groups := st.groups()
		if refine {
			groups = refineGroups(adj, groups)
		}

		levels = append(levels, expandPartition(groups, members))

		if !improved || len(groups) == len(adj) {
			break
		}
		adj, members = aggregate(adj, groups, members)
	}
	return levels, nil
}

// expandPartition maps supernode groups back to original entity ids.
func expandPartition(groups [][]string, members map[string][]string) Partition {
	expanded := make([][]string, 0, len(groups))
	for _, group := range groups {
		var original []string
		for _, supernode := range group {
			original = append(original, members[supernode]...)
		}
		expanded = append(expanded, original)
	}
	return normalizePartition(expanded)
}

// refineGroups splits every group into its connected components, the Leiden
// guarantee that no community spans disjoint regions of the graph.
func refineGroups(adj adjacency, groups [][]string) [][]string {
	refined := make([][]string, 0, len(groups))
	for _, group := range groups {
		if len(group) <= 1 {
			refined = append(refined, group)
			continue
		}
		refined = append(refined, adj.componentsWithin(group)...)
	}
	return refined
}

// aggregate collapses each group into a supernode, summing parallel edge
// weights. Intra-group weight becomes a self-loop so coarser passes keep the
// same total weight.
func aggregate(adj adjacency, groups [][]string, members map[string][]string) (adjacency, map[string][]string) {
	label := make(map[string]string, len(adj))
	newMembers := make(map[string][]string, len(groups))
	for _, group := range groups {
		// The lexicographically first member names the supernode.
		name := group[0]
		for _, node := range group {
			if node < name {
				name = node
			}
		}
		var original []string
		for _, node := range group {
			label[node] = name
			original = append(original, members[node]...)
		}
		sort.Strings(original)
		newMembers[name] = original
	}

	newAdj := make(adjacency, len(groups))
	for name := range newMembers {
		newAdj[name] = make(map[string]float64)
	}
	for node, neighbors := range adj {
		from := label[node]
		for neighbor, w := range neighbors {
			to := label[neighbor]
			// Symmetric iteration visits every edge twice; self-loops keep
			// the doubled weight by convention.
			if from == to {
				newAdj[from][from] += w
			} else {
				newAdj[from][to] += w
			}
		}
	}
	return newAdj, newMembers
}

// moveState tracks the mutable partition during one local-moving pass.
type moveState struct {
	adj        adjacency
	m          float64
	resolution float64
	partition  map[string]string
	nodeDeg    map[string]float64
	commDeg    map[string]float64
}

func newMoveState(adj adjacency, resolution float64) *moveState {
	st := &moveState{
		adj:        adj,
		m:          adj.totalWeight(),
		resolution: resolution,
		partition:  make(map[string]string, len(adj)),
		nodeDeg:    make(map[string]float64, len(adj)),
		commDeg:    make(map[string]float64, len(adj)),
	}
	for node, neighbors := range adj {
		st.partition[node] = node
		var deg float64
		for _, w := range neighbors {
			deg += w
		}
		st.nodeDeg[node] = deg
		st.commDeg[node] = deg
	}
	return st
}

// localMove greedily relocates nodes until no move improves modularity or the
// iteration budget is spent. Returns whether any move happened.
func (st *moveState) localMove(rng *rand.Rand, maxIterations int) bool {
	if st.m == 0 {
		return false
	}

	nodes := st.adj.sortedNodes()
	rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

	moved := false
	for iter := 0; iter < maxIterations; iter++ {
		improvedThisPass := false
		for _, node := range nodes {
			current := st.partition[node]
			bestComm := current
			bestGain := 0.0
			for _, candidate := range st.neighborCommunities(node) {
				if candidate == current {
					continue
				}
				gain := st.gain(node, current, candidate)
				if gain > bestGain {
					bestGain = gain
					bestComm = candidate
				}
			}
			if bestComm != current {
				st.move(node, current, bestComm)
				improvedThisPass = true
				moved = true
			}
		}
		if !improvedThisPass {
			break
		}
	}
	return moved
}

// neighborCommunities returns the communities of the node's neighbors in
// deterministic order.
func (st *moveState) neighborCommunities(node string) []string {
	seen := make(map[string]bool)
	for neighbor := range st.adj[node] {
		if neighbor == node {
			continue
		}
		seen[st.partition[neighbor]] = true
	}
	comms := make([]string, 0, len(seen))
	for comm := range seen {
		comms = append(comms, comm)
	}
	sort.Strings(comms)
	return comms
}

// gain is the modularity change of moving node from its current community to
// another, under the configured resolution.
func (st *moveState) gain(node, from, to string) float64 {
	var kInTo, kInFrom float64
	for neighbor, w := range st.adj[node] {
		if neighbor == node {
			continue
		}
		switch st.partition[neighbor] {
		case to:
			kInTo += w
		case from:
			kInFrom += w
		}
	}

	deg := st.nodeDeg[node]
	degTo := st.commDeg[to]
	degFrom := st.commDeg[from] - deg

	delta := (kInTo - kInFrom) / st.m
	delta -= st.resolution * deg * (degTo - degFrom) / (2 * st.m * st.m)
	return delta
}

func (st *moveState) move(node, from, to string) {
	st.partition[node] = to
	st.commDeg[from] -= st.nodeDeg[node]
	st.commDeg[to] += st.nodeDeg[node]
}

// groups returns the current partition as member groups.
func (st *moveState) groups() [][]string {
	byComm := make(map[string][]string)
	for node, comm := range st.partition {
		byComm[comm] = append(byComm[comm], node)
	}
	labels := make([]string, 0, len(byComm))
	for label := range byComm {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	groups := make([][]string, 0, len(byComm))
	for _, label := range labels {
		group := byComm[label]
		sort.Strings(group)
		groups = append(groups, group)
	}
	return groups
}
