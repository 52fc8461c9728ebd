package rag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gamma-omg/legal-rag/ragerr"
)

const DefaultResults = 3

type Generator interface {
	Generate(ctx context.Context, question string, contexts []string) (string, error)
}

type Answer struct {
	Text string
	// Sources lists the documents the answer was grounded on, best match first.
	Sources []string
}

// Service is the caller-facing entry point: it prepares the index, answers
// questions from retrieved passages and resets the index on demand.
type Service struct {
	mgr       *IndexManager
	retriever *Retriever
	gen       Generator
	results   int
	log       *slog.Logger
}

func NewService(mgr *IndexManager, retriever *Retriever, gen Generator, results int, log *slog.Logger) *Service {
	if results <= 0 {
		results = DefaultResults
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Service{
		mgr:       mgr,
		retriever: retriever,
		gen:       gen,
		results:   results,
		log:       log,
	}
}

func (s *Service) EnsureReady(ctx context.Context) (*Index, error) {
	idx, err := s.mgr.EnsureReady(ctx)
	if err != nil {
		s.logError("failed to prepare index", err)
		return nil, err
	}

	return idx, nil
}

func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	res, err := s.retriever.Retrieve(ctx, query, k)
	if err != nil {
		s.logError("failed to retrieve passages", err)
		return nil, err
	}

	return res, nil
}

// Ask retrieves the configured number of passages for query and has the
// generator answer from them.
func (s *Service) Ask(ctx context.Context, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		err := fmt.Errorf("%w: empty question", ragerr.ErrInvalidArgument)
		s.logError("rejected question", err)
		return Answer{}, err
	}
	if s.gen == nil {
		return Answer{}, fmt.Errorf("%w: no answer generator configured", ragerr.ErrConfiguration)
	}

	res, err := s.Retrieve(ctx, query, s.results)
	if err != nil {
		return Answer{}, err
	}

	contexts := make([]string, 0, len(res))
	for _, r := range res {
		contexts = append(contexts, r.Passage.Text)
	}

	text, err := s.gen.Generate(ctx, query, contexts)
	if err != nil {
		err = fmt.Errorf("failed to generate answer: %w", err)
		s.logError("failed to answer question", err)
		return Answer{}, err
	}

	s.log.Info("question answered", "passages", len(res))
	return Answer{Text: text, Sources: sources(res)}, nil
}

func (s *Service) Reset(ctx context.Context) error {
	if err := s.mgr.Reset(ctx); err != nil {
		s.logError("failed to reset index", err)
		return err
	}

	return nil
}

func (s *Service) logError(msg string, err error) {
	s.log.Error(msg, "err", err, "kind", ragerr.Kind(err))
}

func sources(res []Result) []string {
	seen := make(map[string]struct{}, len(res))
	out := make([]string, 0, len(res))
	for _, r := range res {
		if _, ok := seen[r.Passage.Document]; ok {
			continue
		}

		seen[r.Passage.Document] = struct{}{}
		out = append(out, r.Passage.Document)
	}

	return out
}
