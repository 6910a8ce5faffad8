package embedding

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/ragcore"
)

// BatchEmbedder splits large document sets into bounded batches and embeds
// them concurrently, preserving input order. It keeps individual requests
// under provider input limits while filling the available parallelism.
type BatchEmbedder struct {
	inner       ragcore.Embedder
	batchSize   int
	concurrency int
}

// BatchOptions configures the batcher. Zero values are replaced with
// defaults.
type BatchOptions struct {
	BatchSize   int // Texts per request, default 64
	Concurrency int // Concurrent requests, default 4
}

// NewBatchEmbedder wraps an embedder with batched concurrent fan-out.
func NewBatchEmbedder(inner ragcore.Embedder, opts BatchOptions) *BatchEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &BatchEmbedder{
		inner:       inner,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
	}
}

var _ ragcore.Embedder = (*BatchEmbedder)(nil)

// EmbedDocument embeds one text directly.
func (b *BatchEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return b.inner.EmbedDocument(ctx, text)
}

// EmbedDocuments embeds texts in concurrent batches. Vectors come back in
// input order; the first batch error cancels the remaining batches.
func (b *BatchEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) <= b.batchSize {
		return b.inner.EmbedDocuments(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			batch, err := b.inner.EmbedDocuments(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
