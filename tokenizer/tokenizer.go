// Package tokenizer provides token counting for context budgeting. The
// Estimator is the default counter; a tiktoken-backed counter gives exact
// counts for OpenAI-family models.
package tokenizer

import "github.com/smallnest/ragcore"

// Estimator approximates token counts as len(text)/4, the conventional
// bytes-per-token ratio for English prose. A non-empty text always counts as
// at least one token so budget checks never treat real text as free.
type Estimator struct{}

// NewEstimator creates the default estimating counter.
func NewEstimator() *Estimator { return &Estimator{} }

var _ ragcore.TokenCounter = (*Estimator)(nil)

// Count estimates the token count of text.
func (e *Estimator) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}
