package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gamma-omg/legal-rag/ragerr"
	chromem "github.com/philippgille/chromem-go"
)

var errNoEmbedding = errors.New("chromem store only accepts precomputed embeddings")

// noEmbed keeps chromem from falling back to its default OpenAI embedder.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

type ChromemConfig struct {
	// Path is the directory holding the persisted collection.
	Path       string
	Collection string
	Compress   bool
	// Concurrency bounds parallel document writes during Insert.
	Concurrency int
}

// ChromemStore keeps one collection in an embedded chromem-go database
// persisted under Path. The database is read lazily so that an unreadable
// directory surfaces as ErrIndexCorrupt from the first call instead of from
// the constructor.
type ChromemStore struct {
	cfg ChromemConfig
	db  *chromem.DB
}

func NewChromemStore(cfg ChromemConfig) *ChromemStore {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	return &ChromemStore{cfg: cfg}
}

func (s *ChromemStore) Metric() string {
	return MetricCosine
}

func (s *ChromemStore) load() (*chromem.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	db, err := chromem.NewPersistentDB(s.cfg.Path, s.cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open chromem db at %s: %w", ragerr.ErrIndexCorrupt, s.cfg.Path, err)
	}

	s.db = db
	return db, nil
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	db, err := s.load()
	if err != nil {
		return nil, err
	}

	col := db.GetCollection(s.cfg.Collection, noEmbed)
	if col == nil {
		return nil, fmt.Errorf("collection %s not found", s.cfg.Collection)
	}

	return col, nil
}

func (s *ChromemStore) Exists(ctx context.Context) (bool, error) {
	if _, err := os.Stat(s.cfg.Path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	db, err := s.load()
	if err != nil {
		return false, err
	}

	return db.GetCollection(s.cfg.Collection, noEmbed) != nil, nil
}

func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	col, err := s.collection()
	if err != nil {
		return 0, err
	}

	return col.Count(), nil
}

func (s *ChromemStore) Create(ctx context.Context, dim int) error {
	db, err := s.load()
	if err != nil {
		return err
	}

	_, err = db.CreateCollection(s.cfg.Collection, map[string]string{
		"metric":    MetricCosine,
		"dimension": strconv.Itoa(dim),
	}, noEmbed)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.cfg.Collection, err)
	}

	return nil
}

func (s *ChromemStore) Insert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	col, err := s.collection()
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(recs))
	for _, r := range recs {
		docs = append(docs, chromem.Document{
			ID:        r.ID(),
			Content:   r.Text,
			Embedding: r.Vector,
			Metadata: map[string]string{
				FilePath:    r.File,
				PageIndex:   strconv.Itoa(r.Page),
				ChunkIndex:  strconv.Itoa(r.Chunk),
				OverlapSize: strconv.Itoa(r.Overlap),
			},
		})
	}

	if err := col.AddDocuments(ctx, docs, s.cfg.Concurrency); err != nil {
		return fmt.Errorf("failed to add %d documents: %w", len(docs), err)
	}

	return nil
}

func (s *ChromemStore) Query(ctx context.Context, vec []float32, k int) ([]SearchResult, error) {
	col, err := s.collection()
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the collection size
	k = min(k, col.Count())
	if k <= 0 {
		return []SearchResult{}, nil
	}

	found, err := col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", s.cfg.Collection, err)
	}

	res := make([]SearchResult, 0, len(found))
	for _, r := range found {
		res = append(res, SearchResult{
			Text:    r.Content,
			File:    r.Metadata[FilePath],
			Page:    atoi(r.Metadata[PageIndex]),
			Chunk:   atoi(r.Metadata[ChunkIndex]),
			Overlap: atoi(r.Metadata[OverlapSize]),
			Score:   r.Similarity,
		})
	}

	return res, nil
}

// Drop removes the collection and everything under Path. Dropping a store
// that was never created is not an error.
func (s *ChromemStore) Drop(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.DeleteCollection(s.cfg.Collection); err != nil {
			return fmt.Errorf("failed to delete collection %s: %w", s.cfg.Collection, err)
		}
		s.db = nil
	}

	if err := os.RemoveAll(s.cfg.Path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.cfg.Path, err)
	}

	return nil
}

func (s *ChromemStore) Close() error {
	s.db = nil
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
