package embedder

import (
	"context"
	"fmt"

	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

type LangchainConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// Azure switches the client to Azure OpenAI; Model is then the deployment
	// name and APIVersion is required.
	Azure      bool
	APIVersion string
}

// LangchainEmbedder embeds through langchaingo's OpenAI client, which also
// serves Azure OpenAI deployments.
type LangchainEmbedder struct {
	model    string
	embedder embeddings.Embedder
}

func NewLangchainEmbedder(cfg LangchainConfig) (*LangchainEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding api key is not set", ragerr.ErrConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is not set", ragerr.ErrConfiguration)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Azure {
		if cfg.BaseURL == "" || cfg.APIVersion == "" {
			return nil, fmt.Errorf("%w: azure embeddings need base_url and api_version", ragerr.ErrConfiguration)
		}
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(cfg.APIVersion))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai client: %v", ragerr.ErrConfiguration, err)
	}

	e, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("%w: creating embedder: %v", ragerr.ErrConfiguration, err)
	}

	return &LangchainEmbedder{model: cfg.Model, embedder: e}, nil
}

func (e *LangchainEmbedder) Model() string {
	return e.model
}

func (e *LangchainEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	v, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return v, nil
}

func (e *LangchainEmbedder) EmbedMany(ctx context.Context, texts []string) ([]Vector, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}

	return vecs, nil
}
