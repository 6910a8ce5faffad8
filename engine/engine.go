package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/ragcore"
	"github.com/smallnest/ragcore/llm"
	"github.com/smallnest/ragcore/log"
	"github.com/smallnest/ragcore/retriever"
	"github.com/smallnest/ragcore/tokenizer"
)

// Strategy names accepted by Query and Answer.
const (
	StrategyVector = "vector"
	StrategyGraph  = "graph"
)

// AnswerPrompt frames the assembled context and the user question for the
// generator.
const AnswerPrompt = `Answer the question based on the following context.
If the context does not contain the answer, say so instead of guessing.

Context:
%s

Question: %s
`

// Engine is the retrieval core's query entry point.
type Engine struct {
	strategies       map[string]retriever.Strategy
	generator        llm.Generator
	counter          ragcore.TokenCounter
	maxContextTokens int
	logger           log.Logger
}

// EngineOptions configures an Engine. Zero values are replaced with
// defaults.
type EngineOptions struct {
	MaxContextTokens int                  // Default 4096
	TokenCounter     ragcore.TokenCounter // Default len/4 estimator
	Logger           log.Logger
}

// New creates an engine. Strategies are attached with RegisterStrategy.
func New(generator llm.Generator, opts EngineOptions) *Engine {
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = 4096
	}
	if opts.TokenCounter == nil {
		opts.TokenCounter = tokenizer.NewEstimator()
	}
	if opts.Logger == nil {
		opts.Logger = log.GetDefaultLogger()
	}
	return &Engine{
		strategies:       make(map[string]retriever.Strategy),
		generator:        generator,
		counter:          opts.TokenCounter,
		maxContextTokens: opts.MaxContextTokens,
		logger:           opts.Logger,
	}
}

// RegisterStrategy attaches a retrieval strategy under a name.
func (e *Engine) RegisterStrategy(name string, strategy retriever.Strategy) {
	e.strategies[name] = strategy
}

// Query retrieves with the named strategy and assembles the prompt context.
// ErrNoContextFit passes through as a signal alongside the empty context.
func (e *Engine) Query(ctx context.Context, workspaceID, queryText, strategy string) (*ragcore.PromptContext, error) {
	s, ok := e.strategies[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown retrieval strategy %q", ragcore.ErrInvalidParameter, strategy)
	}

	result, err := s.Retrieve(ctx, workspaceID, queryText)
	if err != nil {
		return nil, err
	}

	return AssembleContext(result, e.maxContextTokens, e.counter)
}

// Answer retrieves, assembles and streams a generated answer. The prompt
// context is returned alongside the fragment channel so callers can render
// citations while fragments arrive. When no chunk fits the budget the answer
// is generated without context.
func (e *Engine) Answer(ctx context.Context, workspaceID, queryText, strategy string) (<-chan llm.Fragment, *ragcore.PromptContext, error) {
	pctx, err := e.Query(ctx, workspaceID, queryText, strategy)
	if err != nil {
		if !errors.Is(err, ragcore.ErrNoContextFit) {
			return nil, nil, err
		}
		e.logger.Warn("no retrieved chunk fits the context budget for workspace %s, answering without context", workspaceID)
	}

	prompt := fmt.Sprintf(AnswerPrompt, renderContext(pctx), queryText)
	fragments, err := e.generator.Stream(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}
	return fragments, pctx, nil
}

// renderContext joins the included chunk texts for the prompt.
func renderContext(pctx *ragcore.PromptContext) string {
	if pctx == nil || len(pctx.Chunks) == 0 {
		return "(no relevant context found)"
	}
	var b strings.Builder
	for i, chunk := range pctx.Chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(chunk.Text)
	}
	return b.String()
}
