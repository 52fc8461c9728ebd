package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func Test_ReadConfig_Defaults(t *testing.T) {
	cfg, err := readConfig(writeConfig(t, "docs: ./legal\n"))
	require.NoError(t, err)

	assert.Equal(t, Sources{"./legal"}, cfg.Docs)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "index", cfg.IndexDir)
	assert.Equal(t, "legal", cfg.Collection)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.Results)
	assert.Equal(t, 64, cfg.RequestSize)
	assert.Equal(t, "localhost:8080", cfg.ServerAddr)
	assert.Equal(t, 1000, cfg.MergeEventsMs)
	assert.Equal(t, "chromem", cfg.Store.Kind)
	assert.Equal(t, 6334, cfg.Store.QdrantPort)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedding.APIKeyEnv)
	assert.Equal(t, "gpt-4o-mini", cfg.Generation.Model)
	assert.InDelta(t, 0.1, *cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, uint(4), cfg.Retry.MaxTries)
	assert.Equal(t, filepath.Join("index", "legal"), cfg.IndexPath())
}

func Test_ReadConfig_DocsList(t *testing.T) {
	cfg, err := readConfig(writeConfig(t, `
docs:
  - ./acts
  - ./guides/stalking.pdf
collection: uk
embedding:
  provider: gemini
generation:
  temperature: 0
`))
	require.NoError(t, err)

	assert.Equal(t, Sources{"./acts", "./guides/stalking.pdf"}, cfg.Docs)
	assert.Equal(t, "text-embedding-004", cfg.Embedding.Model)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Embedding.APIKeyEnv)
	assert.Equal(t, 0.0, *cfg.Generation.Temperature)
	assert.Equal(t, filepath.Join("index", "uk"), cfg.IndexPath())
}

func Test_ReadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no docs", "collection: legal\n"},
		{"overlap too large", "docs: d\nchunk_size: 100\nchunk_overlap: 100\n"},
		{"negative results", "docs: d\nresults: -1\n"},
		{"unknown store", "docs: d\nstore:\n  kind: faiss\n"},
		{"unknown provider", "docs: d\nembedding:\n  provider: cohere\n"},
		{"azure without endpoint", "docs: d\nembedding:\n  provider: azure\n"},
		{"temperature out of range", "docs: d\ngeneration:\n  temperature: 3\n"},
		{"bad log level", "docs: d\nlog_level: loud\n"},
		{"unknown field", "docs: d\ntop_k: 5\n"},
		{"malformed", "docs: [d\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readConfig(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
		})
	}
}

func Test_ReadConfig_MissingFile(t *testing.T) {
	_, err := readConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func Test_ReadConfig_EnvFile(t *testing.T) {
	path := writeConfig(t, "docs: d\nembedding:\n  api_key_env: LEGAL_RAG_TEST_KEY\n")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte("LEGAL_RAG_TEST_KEY=sk-test\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LEGAL_RAG_TEST_KEY") })

	cfg, err := readConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", secret(cfg.Embedding.APIKeyEnv))
}

func Test_Secret(t *testing.T) {
	t.Setenv("LEGAL_RAG_SECRET", "value")

	assert.Equal(t, "value", secret("LEGAL_RAG_SECRET"))
	assert.Empty(t, secret(""))
}
