package community

import (
	"context"

	"github.com/smallnest/ragcore"
)

// LeidenDetector extends Louvain with a refinement phase: after each
// local-moving pass every community is split into its connected components
// before aggregation, so no community at any level spans disconnected parts
// of the graph.
type LeidenDetector struct {
	opts LouvainOptions
}

// NewLeidenDetector creates a Leiden detector. It shares the Louvain option
// set.
func NewLeidenDetector(opts LouvainOptions) *LeidenDetector {
	return &LeidenDetector{opts: opts.withDefaults()}
}

var _ Detector = (*LeidenDetector)(nil)

// Detect runs Leiden community detection.
func (d *LeidenDetector) Detect(ctx context.Context, graph ragcore.GraphProjection, resolution float64) ([]Partition, error) {
	return detectLevels(ctx, graph, resolution, d.opts, true)
}
