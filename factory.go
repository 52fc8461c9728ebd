package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gamma-omg/legal-rag/docstore"
	"github.com/gamma-omg/legal-rag/embedder"
	"github.com/gamma-omg/legal-rag/generator"
	"github.com/gamma-omg/legal-rag/rag"
	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/gamma-omg/legal-rag/readers"
)

func newLogger(cfg *Config) (*slog.Logger, func() error, error) {
	lvl, err := cfg.logLevel()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ragerr.ErrConfiguration, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.LogFile == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return slog.New(slog.NewJSONHandler(logFile, opts)), logFile.Close, nil
}

func createEmbedder(cfg *Config, log *slog.Logger) (embedder.Embedder, error) {
	var (
		provider embedder.Embedder
		err      error
	)

	e := cfg.Embedding
	switch e.Provider {
	case "hash":
		provider = embedder.NewHashEmbedder(e.Dimension)
	case "openai", "azure":
		provider, err = embedder.NewLangchainEmbedder(embedder.LangchainConfig{
			APIKey:     secret(e.APIKeyEnv),
			Model:      e.Model,
			BaseURL:    e.BaseURL,
			Azure:      e.Provider == "azure",
			APIVersion: e.APIVersion,
		})
	case "gemini":
		provider, err = embedder.NewGeminiEmbedder(secret(e.APIKeyEnv), e.Model)
	case "chroma-openai":
		provider, err = embedder.NewOpenAIEmbedder(secret(e.APIKeyEnv), e.Model)
	default:
		err = fmt.Errorf("%w: unknown embedding provider %q", ragerr.ErrConfiguration, e.Provider)
	}
	if err != nil {
		return nil, err
	}

	return embedder.NewBatcher(provider, embedder.BatcherConfig{
		BatchSize:         cfg.RequestSize,
		MaxTries:          cfg.Retry.MaxTries,
		InitialInterval:   time.Duration(cfg.Retry.InitialIntervalMs) * time.Millisecond,
		MaxElapsed:        time.Duration(cfg.Retry.MaxElapsedMs) * time.Millisecond,
		RequestsPerSecond: cfg.Retry.RequestsPerSecond,
	}, log), nil
}

func createStore(cfg *Config) (rag.VectorStore, error) {
	switch cfg.Store.Kind {
	case "chromem":
		return docstore.NewChromemStore(docstore.ChromemConfig{
			Path:       filepath.Join(cfg.IndexPath(), "vectors"),
			Collection: cfg.Collection,
			Compress:   cfg.Store.Compress,
		}), nil
	case "chroma":
		return docstore.NewChromaStore(docstore.ChromaStoreConfig{
			BaseURL:     cfg.Store.ChromaAddr,
			Collection:  cfg.Collection,
			RequestSize: cfg.RequestSize,
		})
	case "qdrant":
		return docstore.NewQdrantStore(docstore.QdrantConfig{
			Host:        cfg.Store.QdrantHost,
			Port:        cfg.Store.QdrantPort,
			APIKey:      secret(cfg.Store.QdrantAPIKeyEnv),
			UseTLS:      cfg.Store.QdrantTLS,
			Collection:  cfg.Collection,
			RequestSize: cfg.RequestSize,
		})
	default:
		return nil, fmt.Errorf("%w: unknown store kind %q", ragerr.ErrConfiguration, cfg.Store.Kind)
	}
}

func createGenerator(cfg *Config, log *slog.Logger) (*generator.LLMGenerator, error) {
	g := cfg.Generation
	return generator.New(generator.Config{
		APIKey:          secret(g.APIKeyEnv),
		Model:           g.Model,
		BaseURL:         g.BaseURL,
		Azure:           g.Provider == "azure",
		APIVersion:      g.APIVersion,
		Temperature:     *g.Temperature,
		PromptFile:      g.PromptFile,
		MaxTries:        cfg.Retry.MaxTries,
		InitialInterval: time.Duration(cfg.Retry.InitialIntervalMs) * time.Millisecond,
		MaxElapsed:      time.Duration(cfg.Retry.MaxElapsedMs) * time.Millisecond,
	}, log)
}

// initService wires the pipeline. The generator is only created when the
// caller is going to answer questions, so retrieval-only commands need no
// chat credentials.
func initService(cfg *Config, log *slog.Logger, answering bool) (*rag.Service, *rag.IndexManager, error) {
	emb, err := createEmbedder(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	mgr, err := rag.NewIndexManager(rag.ManagerConfig{
		Sources:         cfg.Docs,
		Dir:             cfg.IndexPath(),
		Collection:      cfg.Collection,
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
		Dimension:       cfg.Embedding.Dimension,
		RebuildOnChange: cfg.RebuildOnChange,
	}, store, emb, readers.NewLoader(log), log)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	var gen rag.Generator
	if answering {
		g, err := createGenerator(cfg, log)
		if err != nil {
			mgr.Close()
			return nil, nil, fmt.Errorf("failed to create generator: %w", err)
		}
		gen = g
	}

	svc := rag.NewService(mgr, rag.NewRetriever(mgr, emb, log), gen, cfg.Results, log)
	return svc, mgr, nil
}
