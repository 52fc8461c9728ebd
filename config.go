package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/gamma-omg/legal-rag/chunker"
	"github.com/gamma-omg/legal-rag/generator"
	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Sources accepts either a single path or a list of paths.
type Sources []string

func (s *Sources) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = Sources{node.Value}
		return nil
	}

	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}

	*s = list
	return nil
}

type StoreConfig struct {
	Kind            string `yaml:"kind"`
	Compress        bool   `yaml:"compress"`
	ChromaAddr      string `yaml:"chroma_addr"`
	QdrantHost      string `yaml:"qdrant_host"`
	QdrantPort      int    `yaml:"qdrant_port"`
	QdrantAPIKeyEnv string `yaml:"qdrant_api_key_env"`
	QdrantTLS       bool   `yaml:"qdrant_tls"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
	Dimension  int    `yaml:"dimension"`
}

type GenerationConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	BaseURL     string   `yaml:"base_url"`
	APIVersion  string   `yaml:"api_version"`
	Temperature *float64 `yaml:"temperature"`
	PromptFile  string   `yaml:"prompt_file"`
}

type RetryConfig struct {
	MaxTries          uint    `yaml:"max_tries"`
	InitialIntervalMs int     `yaml:"initial_interval_ms"`
	MaxElapsedMs      int     `yaml:"max_elapsed_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type Config struct {
	LogFile         string           `yaml:"log"`
	LogLevel        string           `yaml:"log_level"`
	Docs            Sources          `yaml:"docs"`
	IndexDir        string           `yaml:"index_dir"`
	Collection      string           `yaml:"collection"`
	ChunkSize       int              `yaml:"chunk_size"`
	ChunkOverlap    int              `yaml:"chunk_overlap"`
	Results         int              `yaml:"results"`
	RequestSize     int              `yaml:"request_size"`
	RebuildOnChange bool             `yaml:"rebuild_on_change"`
	Store           StoreConfig      `yaml:"store"`
	Embedding       EmbeddingConfig  `yaml:"embedding"`
	Generation      GenerationConfig `yaml:"generation"`
	Retry           RetryConfig      `yaml:"retry"`
	ServerAddr      string           `yaml:"server_addr"`
	MetricsAddr     string           `yaml:"metrics_addr"`
	MergeEventsMs   int              `yaml:"write_debounce_ms"`
}

var (
	storeKinds          = []string{"chromem", "chroma", "qdrant"}
	embeddingProviders  = []string{"openai", "azure", "gemini", "chroma-openai", "hash"}
	generationProviders = []string{"openai", "azure"}
)

var defaultModels = map[string]string{
	"openai":        "text-embedding-3-small",
	"azure":         "text-embedding-3-small",
	"gemini":        "text-embedding-004",
	"chroma-openai": "text-embedding-3-small",
}

var defaultKeyEnvs = map[string]string{
	"openai":        "OPENAI_API_KEY",
	"azure":         "AZURE_OPENAI_API_KEY",
	"gemini":        "GEMINI_API_KEY",
	"chroma-openai": "OPENAI_API_KEY",
}

// readConfig loads .env files next to the config and in the working
// directory, then decodes and validates the yaml config.
func readConfig(cfgPath string) (*Config, error) {
	for _, env := range []string{filepath.Join(filepath.Dir(cfgPath), ".env"), ".env"} {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: unable to load %s: %v", ragerr.ErrConfiguration, env, err)
		}
	}

	cfgFile, err := os.Open(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open config file: %v", ragerr.ErrConfiguration, err)
	}
	defer cfgFile.Close()

	cfg := &Config{}
	dec := yaml.NewDecoder(cfgFile)
	dec.KnownFields(true)
	err = dec.Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse config file: %v", ragerr.ErrConfiguration, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.IndexDir == "" {
		c.IndexDir = "index"
	}
	if c.Collection == "" {
		c.Collection = "legal"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = chunker.DefaultChunkSize
		if c.ChunkOverlap == 0 {
			c.ChunkOverlap = chunker.DefaultChunkOverlap
		}
	}
	if c.Results == 0 {
		c.Results = 3
	}
	if c.RequestSize == 0 {
		c.RequestSize = 64
	}
	if c.ServerAddr == "" {
		c.ServerAddr = "localhost:8080"
	}
	if c.MergeEventsMs == 0 {
		c.MergeEventsMs = 1000
	}

	if c.Store.Kind == "" {
		c.Store.Kind = "chromem"
	}
	if c.Store.ChromaAddr == "" {
		c.Store.ChromaAddr = "http://localhost:8000"
	}
	if c.Store.QdrantHost == "" {
		c.Store.QdrantHost = "localhost"
	}
	if c.Store.QdrantPort == 0 {
		c.Store.QdrantPort = 6334
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultModels[c.Embedding.Provider]
	}
	if c.Embedding.APIKeyEnv == "" {
		c.Embedding.APIKeyEnv = defaultKeyEnvs[c.Embedding.Provider]
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.APIKeyEnv == "" {
		c.Generation.APIKeyEnv = defaultKeyEnvs[c.Generation.Provider]
	}
	if c.Generation.Temperature == nil {
		t := generator.DefaultTemperature
		c.Generation.Temperature = &t
	}

	if c.Retry.MaxTries == 0 {
		c.Retry.MaxTries = 4
	}
	if c.Retry.InitialIntervalMs == 0 {
		c.Retry.InitialIntervalMs = 500
	}
	if c.Retry.MaxElapsedMs == 0 {
		c.Retry.MaxElapsedMs = 30000
	}
}

func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Docs) == 0 {
		fail("docs must name a file or directory")
	}
	if c.ChunkSize <= 0 {
		fail("chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		fail("chunk_overlap must be in [0, chunk_size)")
	}
	if c.Results <= 0 {
		fail("results must be positive")
	}
	if c.RequestSize <= 0 {
		fail("request_size must be positive")
	}
	if !slices.Contains(storeKinds, c.Store.Kind) {
		fail("store.kind %q is not one of %v", c.Store.Kind, storeKinds)
	}
	if !slices.Contains(embeddingProviders, c.Embedding.Provider) {
		fail("embedding.provider %q is not one of %v", c.Embedding.Provider, embeddingProviders)
	}
	if c.Embedding.Provider == "azure" && (c.Embedding.BaseURL == "" || c.Embedding.APIVersion == "") {
		fail("embedding.base_url and embedding.api_version are required for azure")
	}
	if !slices.Contains(generationProviders, c.Generation.Provider) {
		fail("generation.provider %q is not one of %v", c.Generation.Provider, generationProviders)
	}
	if c.Generation.Provider == "azure" && (c.Generation.BaseURL == "" || c.Generation.APIVersion == "") {
		fail("generation.base_url and generation.api_version are required for azure")
	}
	if t := *c.Generation.Temperature; t < 0 || t > 2 {
		fail("generation.temperature must be in [0, 2]")
	}
	if _, err := c.logLevel(); err != nil {
		fail("log_level: %v", err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ragerr.ErrConfiguration, err)
	}

	return nil
}

func (c *Config) logLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(c.LogLevel))
	return lvl, err
}

// IndexPath is the directory owned by the collection's index.
func (c *Config) IndexPath() string {
	return filepath.Join(c.IndexDir, c.Collection)
}

// secret reads a credential from the environment.
func secret(env string) string {
	if env == "" {
		return ""
	}

	return os.Getenv(env)
}
