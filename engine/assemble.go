// Package engine is the query entry point: it dispatches to a retrieval
// strategy, assembles the retrieved chunks into a token-bounded prompt
// context and drives streaming answer generation.
package engine

import (
	"fmt"

	"github.com/smallnest/ragcore"
)

// AssembleContext folds a retrieval result into a prompt context bounded by
// maxTokens. Chunks are taken in the result's order and included
// all-or-nothing; inclusion stops at the first chunk that would exceed the
// budget, and the remainder is reported as DroppedChunks. Citations collect
// the included chunks' source refs in first-appearance order.
//
// If the result has chunks but none fit, the returned error is
// ErrNoContextFit and the context is empty; callers treat it as a signal to
// continue without context, not a failure.
func AssembleContext(result *ragcore.RetrievalResult, maxTokens int, counter ragcore.TokenCounter) (*ragcore.PromptContext, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", ragcore.ErrInvalidParameter, maxTokens)
	}

	pctx := &ragcore.PromptContext{
		Chunks:    make([]ragcore.ScoredChunk, 0),
		Citations: make([]string, 0),
	}
	if result == nil || len(result.Chunks) == 0 {
		return pctx, nil
	}

	seenRefs := make(map[string]bool)
	for i, chunk := range result.Chunks {
		tokens := counter.Count(chunk.Text)
		if pctx.TokenCount+tokens > maxTokens {
			pctx.DroppedChunks = len(result.Chunks) - i
			break
		}
		pctx.Chunks = append(pctx.Chunks, chunk)
		pctx.TokenCount += tokens
		for _, ref := range chunk.SourceRefs {
			if !seenRefs[ref] {
				seenRefs[ref] = true
				pctx.Citations = append(pctx.Citations, ref)
			}
		}
	}

	if len(pctx.Chunks) == 0 {
		pctx.DroppedChunks = len(result.Chunks)
		return pctx, fmt.Errorf("%w: first chunk alone exceeds %d tokens", ragcore.ErrNoContextFit, maxTokens)
	}
	return pctx, nil
}
