package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/smallnest/ragcore"
)

// LangChainEmbedder adapts langchaingo's embeddings.Embedder to
// ragcore.Embedder, so any provider langchaingo supports can back the vector
// index.
type LangChainEmbedder struct {
	embedder embeddings.Embedder
}

// NewLangChainEmbedder creates a new adapter for langchaingo embedders.
func NewLangChainEmbedder(embedder embeddings.Embedder) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: embedder}
}

var _ ragcore.Embedder = (*LangChainEmbedder)(nil)

// EmbedDocument embeds a single text using the underlying langchaingo
// embedder.
func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	vector, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: langchain embed query: %v", ragcore.ErrExternalService, err)
	}
	return vector, nil
}

// EmbedDocuments embeds multiple texts using the underlying langchaingo
// embedder.
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: langchain embed documents: %v", ragcore.ErrExternalService, err)
	}
	return vectors, nil
}
