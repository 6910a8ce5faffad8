package ragcore

// WorkspaceConfig holds the per-workspace retrieval configuration. Zero
// values are replaced with defaults by Normalize, so the zero WorkspaceConfig
// is usable.
type WorkspaceConfig struct {
	// Dimension is the fixed embedding dimension for the workspace. When 0,
	// the index fixes it from the first upserted vector.
	Dimension int

	// ConfidenceThreshold drops relationships below it at creation time.
	ConfidenceThreshold float64

	// MaxTopK caps vector search top_k; larger requests are clamped.
	MaxTopK int

	// ExpansionLimit is the hard ceiling on k-hop expansion. Expansion is
	// truncated deterministically in BFS order once the ceiling is reached.
	ExpansionLimit int

	// MaxContextTokens bounds the assembled prompt context.
	MaxContextTokens int
}

// DefaultWorkspaceConfig returns the default workspace configuration.
func DefaultWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{
		ConfidenceThreshold: 0.5,
		MaxTopK:             50,
		ExpansionLimit:      500,
		MaxContextTokens:    4096,
	}
}

// Normalize fills zero-valued fields with defaults and returns the config.
func (c WorkspaceConfig) Normalize() WorkspaceConfig {
	def := DefaultWorkspaceConfig()
	if c.MaxTopK <= 0 {
		c.MaxTopK = def.MaxTopK
	}
	if c.ExpansionLimit <= 0 {
		c.ExpansionLimit = def.ExpansionLimit
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = def.MaxContextTokens
	}
	if c.ConfidenceThreshold < 0 {
		c.ConfidenceThreshold = 0
	}
	return c
}
