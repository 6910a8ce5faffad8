package community

import (
	"context"
	"sort"

	"github.com/smallnest/ragcore"
)

// Partition is one level of a community assignment: each inner slice holds
// the member entity ids of one community. Communities within a level are
// disjoint and cover every node of the graph.
type Partition [][]string

// Detector discovers community structure in an undirected weighted graph.
// Detect returns one Partition per hierarchy level, level 0 being the
// finest. An empty graph yields no levels.
type Detector interface {
	Detect(ctx context.Context, graph ragcore.GraphProjection, resolution float64) ([]Partition, error)
}

// adjacency is a symmetric weighted adjacency map. Every node of the graph is
// present as a key, isolated nodes with an empty neighbor map.
type adjacency map[string]map[string]float64

func buildAdjacency(graph ragcore.GraphProjection) adjacency {
	adj := make(adjacency, len(graph.Nodes))
	for _, node := range graph.Nodes {
		adj[node] = make(map[string]float64)
	}
	for _, edge := range graph.Edges {
		if _, ok := adj[edge.Source]; !ok {
			continue
		}
		if _, ok := adj[edge.Target]; !ok {
			continue
		}
		if edge.Source == edge.Target {
			continue
		}
		adj[edge.Source][edge.Target] += edge.Weight
		adj[edge.Target][edge.Source] += edge.Weight
	}
	return adj
}

// totalWeight returns the sum of edge weights, each undirected edge counted
// once.
func (adj adjacency) totalWeight() float64 {
	var sum float64
	for _, neighbors := range adj {
		for _, w := range neighbors {
			sum += w
		}
	}
	return sum / 2
}

// sortedNodes returns the node ids in lexicographic order, the deterministic
// base ordering before seeded shuffling.
func (adj adjacency) sortedNodes() []string {
	nodes := make([]string, 0, len(adj))
	for node := range adj {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// componentsWithin finds the connected components of the subgraph induced by
// members, in deterministic order.
func (adj adjacency) componentsWithin(members []string) [][]string {
	inSet := make(map[string]bool, len(members))
	for _, m := range members {
		inSet[m] = true
	}

	ordered := append([]string(nil), members...)
	sort.Strings(ordered)

	visited := make(map[string]bool, len(members))
	var components [][]string
	for _, start := range ordered {
		if visited[start] {
			continue
		}
		component := []string{}
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			component = append(component, node)

			neighbors := make([]string, 0, len(adj[node]))
			for neighbor := range adj[node] {
				if inSet[neighbor] && !visited[neighbor] {
					neighbors = append(neighbors, neighbor)
				}
			}
			sort.Strings(neighbors)
			for _, neighbor := range neighbors {
				visited[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
		sort.Strings(component)
		components = append(components, component)
	}
	return components
}

// normalizePartition sorts members within each community and communities by
// their first member, so partitions compare deterministically.
func normalizePartition(groups [][]string) Partition {
	p := make(Partition, 0, len(groups))
	for _, g := range groups {
		members := append([]string(nil), g...)
		sort.Strings(members)
		p = append(p, members)
	}
	sort.Slice(p, func(i, j int) bool { return p[i][0] < p[j][0] })
	return p
}
