// Package generator turns a question and its retrieved passages into an
// answer with a chat model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"
)

const DefaultTemperature = 0.1

var promptVariables = []string{"context", "input"}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Azure switches the client to Azure OpenAI; Model is then the deployment
	// name and APIVersion is required.
	Azure       bool
	APIVersion  string
	Temperature float64
	// PromptFile overrides DefaultPrompt. It must use {context} and {input}.
	PromptFile string

	MaxTries        uint
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

type LLMGenerator struct {
	llm    llms.Model
	model  string
	prompt prompts.PromptTemplate
	cfg    Config
	log    *slog.Logger
}

// New builds a generator backed by an OpenAI or Azure OpenAI chat model.
func New(cfg Config, log *slog.Logger) (*LLMGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: generation api key is not set", ragerr.ErrConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: generation model is not set", ragerr.ErrConfiguration)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Azure {
		if cfg.BaseURL == "" || cfg.APIVersion == "" {
			return nil, fmt.Errorf("%w: azure generation needs base_url and api_version", ragerr.ErrConfiguration)
		}
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(cfg.APIVersion))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai client: %v", ragerr.ErrConfiguration, err)
	}

	return NewWithModel(llm, cfg, log)
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(llm llms.Model, cfg Config, log *slog.Logger) (*LLMGenerator, error) {
	tmpl := DefaultPrompt
	if cfg.PromptFile != "" {
		raw, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading prompt file: %v", ragerr.ErrConfiguration, err)
		}
		tmpl = string(raw)
	}

	if err := prompts.CheckValidTemplate(tmpl, prompts.TemplateFormatFString, promptVariables); err != nil {
		return nil, fmt.Errorf("%w: invalid prompt template: %v", ragerr.ErrConfiguration, err)
	}
	for _, v := range promptVariables {
		if !strings.Contains(tmpl, "{"+v+"}") {
			return nil, fmt.Errorf("%w: prompt template does not use {%s}", ragerr.ErrConfiguration, v)
		}
	}

	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = time.Minute
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	model := cfg.Model
	if model == "" {
		model = "chat"
	}

	return &LLMGenerator{
		llm:   llm,
		model: model,
		prompt: prompts.PromptTemplate{
			Template:       tmpl,
			InputVariables: promptVariables,
			TemplateFormat: prompts.TemplateFormatFString,
		},
		cfg: cfg,
		log: log,
	}, nil
}

// Prompt renders the template for question and contexts.
func (g *LLMGenerator) Prompt(question string, contexts []string) (string, error) {
	return g.prompt.Format(map[string]any{
		"context": strings.Join(contexts, "\n\n"),
		"input":   question,
	})
}

func (g *LLMGenerator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	prompt, err := g.Prompt(question, contexts)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	op := func() (string, error) {
		answer, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
			llms.WithTemperature(g.cfg.Temperature))
		err = ragerr.Classify(g.model, err)
		if err != nil && !errors.Is(err, ragerr.ErrTransientProvider) {
			return "", backoff.Permanent(err)
		}

		return answer, err
	}

	answer, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     g.cfg.InitialInterval,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         8 * g.cfg.InitialInterval,
		}),
		backoff.WithMaxTries(g.cfg.MaxTries),
		backoff.WithMaxElapsedTime(g.cfg.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.log.Warn("generation request failed, retrying",
				"model", g.model, "err", err, "kind", ragerr.Kind(err), "retry_in", next)
		}),
	)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(answer), nil
}
