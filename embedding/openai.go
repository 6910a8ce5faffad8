// Package embedding provides Embedder implementations over external
// embedding services, plus decorators for retries and batched fan-out.
package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/smallnest/ragcore"
)

// OpenAIEmbedder implements ragcore.Embedder against an OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// OpenAIOptions configures the embeddings client.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // Optional, for OpenAI-compatible servers (Ollama, vLLM)
	Model   string // Default "text-embedding-3-small"
}

// NewOpenAIEmbedder creates an embedder over the OpenAI embeddings API.
func NewOpenAIEmbedder(opts OpenAIOptions) *OpenAIEmbedder {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  openai.EmbeddingModel(model),
	}
}

var _ ragcore.Embedder = (*OpenAIEmbedder)(nil)

// EmbedDocument embeds a single text.
func (e *OpenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of texts, returning vectors in input order.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings request: %v", ragcore.ErrExternalService, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embeddings response has %d vectors for %d inputs",
			ragcore.ErrExternalService, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}
