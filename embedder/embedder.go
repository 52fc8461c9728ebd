// Package embedder maps text to fixed-dimension vectors.
//
// Providers talk to a single remote model. Batcher wraps any provider with
// batching, client-side rate limiting and bounded retries of transient
// failures; the rest of the pipeline only ever sees a Batcher.
package embedder

import "context"

type Vector = []float32

type Embedder interface {
	// Model identifies the embedding model. Indexes built with one model
	// are never queried with another.
	Model() string
	Embed(ctx context.Context, text string) (Vector, error)
	// EmbedMany returns one vector per text, in input order.
	EmbedMany(ctx context.Context, texts []string) ([]Vector, error)
}
