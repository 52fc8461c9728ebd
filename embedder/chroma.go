package embedder

import (
	"context"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"
	"github.com/gamma-omg/legal-rag/ragerr"
)

// ChromaEmbedder adapts a chroma-go embedding function.
type ChromaEmbedder struct {
	model string
	ef    embeddings.EmbeddingFunction
}

func NewChromaEmbedder(model string, ef embeddings.EmbeddingFunction) *ChromaEmbedder {
	return &ChromaEmbedder{model: model, ef: ef}
}

func NewOpenAIEmbedder(apiKey, model string) (*ChromaEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key is not set", ragerr.ErrConfiguration)
	}

	ef, err := openai.NewOpenAIEmbeddingFunction(
		apiKey,
		openai.WithModel(openai.EmbeddingModel(model)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create OpenAI embedding function: %v", ragerr.ErrConfiguration, err)
	}

	return NewChromaEmbedder(model, ef), nil
}

func NewGeminiEmbedder(apiKey, model string) (*ChromaEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is not set", ragerr.ErrConfiguration)
	}

	ef, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithAPIKey(apiKey),
		gemini.WithDefaultModel(embeddings.EmbeddingModel(model)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini embedding function: %v", ragerr.ErrConfiguration, err)
	}

	return NewChromaEmbedder(model, ef), nil
}

func (e *ChromaEmbedder) Model() string {
	return e.model
}

func (e *ChromaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	emb, err := e.ef.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return emb.ContentAsFloat32(), nil
}

func (e *ChromaEmbedder) EmbedMany(ctx context.Context, texts []string) ([]Vector, error) {
	embs, err := e.ef.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}

	res := make([]Vector, 0, len(embs))
	for _, emb := range embs {
		res = append(res, emb.ContentAsFloat32())
	}

	return res, nil
}
