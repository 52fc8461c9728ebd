package rag

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/gamma-omg/legal-rag/chunker"
	"github.com/gamma-omg/legal-rag/embedder"
	"github.com/gamma-omg/legal-rag/ragerr"
)

type Result struct {
	Passage chunker.Passage
	Score   float32
}

// Retriever answers top-k queries against the manager's ready index. It never
// builds the index.
type Retriever struct {
	mgr      *IndexManager
	embedder embedder.Embedder
	log      *slog.Logger
}

func NewRetriever(mgr *IndexManager, emb embedder.Embedder, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Retriever{mgr: mgr, embedder: emb, log: log}
}

// Retrieve returns at most k passages ordered by descending score. Equal
// scores are ordered by chunk index, then by document, so the order does not
// depend on the store.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ragerr.ErrInvalidArgument, k)
	}
	if st := r.mgr.State(); st != Ready {
		return nil, fmt.Errorf("%w: index is %s", ragerr.ErrIndexNotReady, st)
	}

	start := time.Now()
	defer func() {
		RetrievalDuration.Observe(time.Since(start).Seconds())
	}()

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// over-fetch so that ties at the cut are resolved here and not by the store
	found, err := r.mgr.search(ctx, vec, 2*k)
	if err != nil {
		return nil, err
	}

	res := make([]Result, 0, len(found))
	for _, f := range found {
		res = append(res, Result{
			Passage: chunker.Passage{
				Text:     f.Text,
				Overlap:  f.Overlap,
				Document: f.File,
				Page:     f.Page,
				Index:    f.Chunk,
			},
			Score: f.Score,
		})
	}

	slices.SortStableFunc(res, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Passage.Index, b.Passage.Index); c != 0 {
			return c
		}
		return cmp.Compare(a.Passage.Document, b.Passage.Document)
	})

	if len(res) > k {
		res = res[:k]
	}

	r.log.Debug("passages retrieved", "k", k, "found", len(res))
	return res, nil
}
