// Package rag builds, validates and queries the persisted passage index and
// exposes the question answering service on top of it.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gamma-omg/legal-rag/chunker"
	"github.com/gamma-omg/legal-rag/docstore"
	"github.com/gamma-omg/legal-rag/embedder"
	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/gamma-omg/legal-rag/readers"
)

type VectorStore interface {
	Metric() string
	Exists(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, dim int) error
	Insert(ctx context.Context, recs []docstore.Record) error
	Query(ctx context.Context, vec []float32, k int) ([]docstore.SearchResult, error)
	Drop(ctx context.Context) error
	Close() error
}

type DocumentLoader interface {
	Load(sources ...string) ([]readers.Document, error)
	Fingerprint(sources ...string) (uint32, error)
}

type State int

const (
	Absent State = iota
	Building
	Ready
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Ready:
		return "ready"
	default:
		return "absent"
	}
}

type ManagerConfig struct {
	Sources []string
	// Dir holds the manifest and, for embedded stores, the vectors.
	Dir          string
	Collection   string
	ChunkSize    int
	ChunkOverlap int
	// Dimension is checked against built vectors when set.
	Dimension       int
	RebuildOnChange bool
}

// Index is the description of a ready index.
type Index struct {
	Collection string
	Model      string
	Dimension  int
	Metric     string
	Count      int
	Sources    []string
}

// IndexManager owns the index of one collection. It is the only component
// that creates or deletes it; builds and resets hold the write lock, queries
// the read lock.
type IndexManager struct {
	mu       sync.RWMutex
	cfg      ManagerConfig
	store    VectorStore
	embedder embedder.Embedder
	loader   DocumentLoader
	chunker  *chunker.Chunker
	log      *slog.Logger
	state    State
	index    *Index
}

func NewIndexManager(cfg ManagerConfig, store VectorStore, emb embedder.Embedder, loader DocumentLoader, log *slog.Logger) (*IndexManager, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("%w: no document sources configured", ragerr.ErrConfiguration)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: index directory is not set", ragerr.ErrConfiguration)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is not set", ragerr.ErrConfiguration)
	}

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &IndexManager{
		cfg:      cfg,
		store:    store,
		embedder: emb,
		loader:   loader,
		chunker:  ch,
		log:      log.With("collection", cfg.Collection),
	}, nil
}

func (m *IndexManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

func (m *IndexManager) manifestPath() string {
	return filepath.Join(m.cfg.Dir, manifestFile)
}

// EnsureReady reuses a valid persisted index or builds a new one. Reuse makes
// no embedding calls.
func (m *IndexManager) EnsureReady(ctx context.Context) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Ready {
		return m.index, nil
	}

	v, err := m.openAndValidate(ctx)
	if err != nil {
		return nil, err
	}

	if v.valid() {
		m.setReady(v.index)
		ReuseTotal.Inc()
		m.log.Info("reusing persisted index", "passages", v.index.Count, "model", v.index.Model)
		return v.index, nil
	}

	corrupt := fmt.Errorf("%w: %s", ragerr.ErrIndexCorrupt, v.reason)
	m.log.Warn("persisted index is not usable, rebuilding", "err", corrupt, "kind", ragerr.Kind(corrupt))

	start := time.Now()
	idx, err := m.build(ctx, v.fingerprint)
	if err != nil {
		BuildsTotal.WithLabelValues("error").Inc()
		m.state = Absent
		m.index = nil
		return nil, err
	}

	BuildsTotal.WithLabelValues("ok").Inc()
	BuildDuration.Observe(time.Since(start).Seconds())
	m.setReady(idx)
	m.log.Info("index built", "passages", idx.Count, "dimension", idx.Dimension, "elapsed", time.Since(start))

	return idx, nil
}

func (m *IndexManager) setReady(idx *Index) {
	m.state = Ready
	m.index = idx
	Passages.Set(float64(idx.Count))
}

type validation struct {
	index       *Index
	reason      string
	fingerprint uint32
}

func (v validation) valid() bool {
	return v.reason == ""
}

// openAndValidate reports whether the persisted index can be used as is. An
// unusable index is a result, not an error; errors are reserved for failures
// that a rebuild would not fix.
func (m *IndexManager) openAndValidate(ctx context.Context) (validation, error) {
	var v validation

	fp, err := m.loader.Fingerprint(m.cfg.Sources...)
	if err != nil {
		return v, err
	}
	v.fingerprint = fp

	man, err := readManifest(m.manifestPath())
	if err != nil {
		v.reason = err.Error()
		return v, nil
	}

	switch {
	case man.Collection != m.cfg.Collection:
		v.reason = fmt.Sprintf("manifest collection %q differs from %q", man.Collection, m.cfg.Collection)
		return v, nil
	case man.Model != m.embedder.Model():
		v.reason = fmt.Sprintf("index built with model %q, configured %q", man.Model, m.embedder.Model())
		return v, nil
	case m.cfg.Dimension > 0 && man.Dimension != m.cfg.Dimension:
		v.reason = fmt.Sprintf("index dimension %d, configured %d", man.Dimension, m.cfg.Dimension)
		return v, nil
	case man.Metric != m.store.Metric():
		v.reason = fmt.Sprintf("index metric %q, store uses %q", man.Metric, m.store.Metric())
		return v, nil
	case m.cfg.RebuildOnChange && man.Fingerprint != fp:
		v.reason = "document corpus changed"
		return v, nil
	}

	exists, err := m.store.Exists(ctx)
	if errors.Is(err, ragerr.ErrIndexCorrupt) {
		v.reason = err.Error()
		return v, nil
	}
	if err != nil {
		return v, err
	}
	if !exists {
		v.reason = "collection is missing from the store"
		return v, nil
	}

	count, err := m.store.Count(ctx)
	if err != nil {
		v.reason = fmt.Sprintf("collection is unreadable: %s", err)
		return v, nil
	}
	if count != man.Count {
		v.reason = fmt.Sprintf("collection holds %d passages, manifest %d", count, man.Count)
		return v, nil
	}

	v.index = &Index{
		Collection: man.Collection,
		Model:      man.Model,
		Dimension:  man.Dimension,
		Metric:     man.Metric,
		Count:      man.Count,
		Sources:    man.Sources,
	}

	return v, nil
}

func (m *IndexManager) build(ctx context.Context, fingerprint uint32) (*Index, error) {
	m.state = Building
	m.index = nil

	if err := m.clear(ctx); err != nil {
		return nil, err
	}

	docs, err := m.loader.Load(m.cfg.Sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	var pages []readers.Page
	sources := make([]string, 0, len(docs))
	for _, d := range docs {
		pages = append(pages, d.Pages...)
		sources = append(sources, d.Source)
	}

	passages := m.chunker.Chunk(pages)
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: no documents found in %v", ragerr.ErrConfiguration, m.cfg.Sources)
	}
	m.log.Info("documents chunked", "documents", len(docs), "passages", len(passages))

	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Text)
	}

	vecs, err := m.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed passages: %w", err)
	}
	if len(vecs) != len(passages) {
		return nil, fmt.Errorf("%w: got %d vectors for %d passages", ragerr.ErrFatalProvider, len(vecs), len(passages))
	}

	dim := len(vecs[0])
	if m.cfg.Dimension > 0 && dim != m.cfg.Dimension {
		return nil, fmt.Errorf("%w: model %s produces %d-dimensional vectors, configured %d",
			ragerr.ErrConfiguration, m.embedder.Model(), dim, m.cfg.Dimension)
	}

	recs := make([]docstore.Record, 0, len(passages))
	for i, p := range passages {
		recs = append(recs, docstore.Record{
			File:    p.Document,
			Page:    p.Page,
			Chunk:   p.Index,
			Overlap: p.Overlap,
			Text:    p.Text,
			Vector:  vecs[i],
		})
	}

	if err := m.store.Create(ctx, dim); err != nil {
		return nil, err
	}
	if err := m.store.Insert(ctx, recs); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	man := &Manifest{
		Collection:  m.cfg.Collection,
		Model:       m.embedder.Model(),
		Dimension:   dim,
		Metric:      m.store.Metric(),
		Count:       len(recs),
		Fingerprint: fingerprint,
		Sources:     sources,
		BuiltAt:     time.Now().UTC(),
	}
	if err := writeManifest(m.manifestPath(), man); err != nil {
		return nil, err
	}

	return &Index{
		Collection: man.Collection,
		Model:      man.Model,
		Dimension:  man.Dimension,
		Metric:     man.Metric,
		Count:      man.Count,
		Sources:    man.Sources,
	}, nil
}

// clear drops the collection and the manifest, leaving nothing a later
// validation could mistake for a finished build.
func (m *IndexManager) clear(ctx context.Context) error {
	if err := os.Remove(m.manifestPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}

	if err := m.store.Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}

	return nil
}

// Reset deletes the index. Resetting an absent index does nothing.
func (m *IndexManager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.clear(ctx); err != nil {
		return err
	}

	if err := os.RemoveAll(m.cfg.Dir); err != nil {
		return fmt.Errorf("failed to remove index dir: %w", err)
	}

	if m.state != Absent {
		m.log.Info("index reset")
	}

	m.state = Absent
	m.index = nil
	Passages.Set(0)

	return nil
}

// search runs a vector query against the ready index.
func (m *IndexManager) search(ctx context.Context, vec []float32, k int) ([]docstore.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != Ready {
		return nil, fmt.Errorf("%w: index is %s", ragerr.ErrIndexNotReady, m.state)
	}
	if len(vec) != m.index.Dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index %d",
			ragerr.ErrConfiguration, len(vec), m.index.Dimension)
	}

	return m.store.Query(ctx, vec, min(k, m.index.Count))
}

// Sources lists the documents of the ready index.
func (m *IndexManager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.index == nil {
		return nil
	}

	return slices.Clone(m.index.Sources)
}

func (m *IndexManager) Close() error {
	return m.store.Close()
}
