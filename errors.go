package ragcore

import "errors"

// Sentinel errors for the retrieval core. Callers match them with errors.Is;
// call sites wrap them with fmt.Errorf("...: %w", err) to add detail.
var (
	// ErrDimensionMismatch reports an embedding whose dimension disagrees
	// with the workspace's configured dimension. Caller error, no retry.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnknownEntity reports a relationship referencing an entity that does
	// not exist in the workspace.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrInvalidParameter reports an out-of-range parameter such as a
	// non-positive clustering resolution. Caller error, no retry.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrClusteringInProgress is returned when a clustering pass is already
	// in flight for the workspace. Clustering is exclusive with itself per
	// workspace because it fully replaces the community set.
	ErrClusteringInProgress = errors.New("clustering already in progress")

	// ErrNoContextFit signals that not even the first retrieved chunk fits
	// within the context token budget. It is a signal, not a failure: callers
	// use it to fall back to answering without retrieved context.
	ErrNoContextFit = errors.New("no chunk fits within the context token budget")

	// ErrExternalService reports an unreachable or erroring embedding,
	// extraction or LLM provider, after call-site retries are exhausted.
	ErrExternalService = errors.New("external service error")
)
