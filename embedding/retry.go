package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/log"
)

// RetryEmbedder decorates an Embedder with bounded exponential backoff.
// Retry policy lives here at the boundary; the retrieval core stays free of
// retry state.
type RetryEmbedder struct {
	inner      ragcore.Embedder
	maxRetries int
	baseDelay  time.Duration
	logger     log.Logger
}

// RetryOptions configures the retry decorator. Zero values are replaced with
// defaults.
type RetryOptions struct {
	MaxRetries int           // Default 3
	BaseDelay  time.Duration // Default 200ms, doubled per attempt, capped at 5s
	Logger     log.Logger
}

// NewRetryEmbedder wraps an embedder with retries.
func NewRetryEmbedder(inner ragcore.Embedder, opts RetryOptions) *RetryEmbedder {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.GetDefaultLogger()
	}
	return &RetryEmbedder{
		inner:      inner,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		logger:     opts.Logger,
	}
}

var _ ragcore.Embedder = (*RetryEmbedder)(nil)

// EmbedDocument embeds one text, retrying transient failures.
func (r *RetryEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := r.retry(ctx, func() error {
		var err error
		vector, err = r.inner.EmbedDocument(ctx, text)
		return err
	})
	return vector, err
}

// EmbedDocuments embeds a batch of texts, retrying transient failures.
func (r *RetryEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.retry(ctx, func() error {
		var err error
		vectors, err = r.inner.EmbedDocuments(ctx, texts)
		return err
	})
	return vectors, err
}

func (r *RetryEmbedder) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.delay(attempt - 1)):
			}
			r.logger.Debug("retrying embedding request, attempt %d/%d", attempt, r.maxRetries)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: embedding failed after %d retries: %v",
		ragcore.ErrExternalService, r.maxRetries, lastErr)
}

// delay is exponential backoff capped at 5s.
func (r *RetryEmbedder) delay(attempt int) time.Duration {
	d := r.baseDelay << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
