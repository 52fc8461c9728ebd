package embedder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gamma-omg/legal-rag/ragerr"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize       = 64
	DefaultMaxTries        = 4
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxElapsed      = 30 * time.Second
)

type BatcherConfig struct {
	BatchSize       int
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	// RequestsPerSecond limits provider calls; zero disables the limit.
	RequestsPerSecond float64
}

func (c *BatcherConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxTries == 0 {
		c.MaxTries = DefaultMaxTries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 8 * c.InitialInterval
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = DefaultMaxElapsed
	}
}

type Batcher struct {
	next    Embedder
	cfg     BatcherConfig
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewBatcher(next Embedder, cfg BatcherConfig, log *slog.Logger) *Batcher {
	cfg.applyDefaults()
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Batcher{
		next:    next,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
	}
}

func (b *Batcher) Model() string {
	return b.next.Model()
}

func (b *Batcher) Embed(ctx context.Context, text string) (Vector, error) {
	return retry(ctx, b, 1, func() (Vector, error) {
		return b.next.Embed(ctx, text)
	})
}

// EmbedMany sends texts in batches of BatchSize. Every vector of the result
// has the same dimension.
func (b *Batcher) EmbedMany(ctx context.Context, texts []string) ([]Vector, error) {
	res := make([]Vector, 0, len(texts))

	for start := 0; start < len(texts); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := retry(ctx, b, len(batch), func() ([]Vector, error) {
			return b.next.EmbedMany(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts",
				ragerr.ErrFatalProvider, len(vecs), len(batch))
		}

		res = append(res, vecs...)
	}

	for i := 1; i < len(res); i++ {
		if len(res[i]) != len(res[0]) {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d",
				ragerr.ErrFatalProvider, i, len(res[i]), len(res[0]))
		}
	}

	return res, nil
}

func retry[T any](ctx context.Context, b *Batcher, n int, call func() (T, error)) (T, error) {
	model := b.next.Model()
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     b.cfg.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         b.cfg.MaxInterval,
	}

	op := func() (T, error) {
		var zero T
		if err := b.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}

		TextsTotal.WithLabelValues(model).Add(float64(n))
		res, err := call()
		err = ragerr.Classify(model, err)
		switch {
		case err == nil:
			RequestsTotal.WithLabelValues(model, "ok").Inc()
			return res, nil
		case errors.Is(err, ragerr.ErrTransientProvider):
			RequestsTotal.WithLabelValues(model, "transient").Inc()
			return zero, err
		case errors.Is(err, ragerr.ErrFatalProvider):
			RequestsTotal.WithLabelValues(model, "fatal").Inc()
			return zero, backoff.Permanent(err)
		default:
			RequestsTotal.WithLabelValues(model, "canceled").Inc()
			return zero, backoff.Permanent(err)
		}
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(b.cfg.MaxTries),
		backoff.WithMaxElapsedTime(b.cfg.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			b.log.Warn("embedding request failed, retrying",
				"model", model, "err", err, "kind", ragerr.Kind(err), "retry_in", next)
		}),
	)
}
