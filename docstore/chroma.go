package docstore

import (
	"context"
	"fmt"
	"strings"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/gamma-omg/legal-rag/ragerr"
)

type ChromaStoreConfig struct {
	BaseURL    string
	Collection string
	// RequestSize caps the number of records sent per Add call.
	RequestSize int
}

// ChromaStore keeps the collection on a remote Chroma server. Vectors are
// always computed by the caller, so the collection carries no embedding
// function.
type ChromaStore struct {
	name        string
	requestSize int
	client      chroma.Client
	col         chroma.Collection
}

func NewChromaStore(cfg ChromaStoreConfig) (*ChromaStore, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	requestSize := cfg.RequestSize
	if requestSize <= 0 {
		requestSize = 100
	}

	return &ChromaStore{
		name:        cfg.Collection,
		requestSize: requestSize,
		client:      client,
	}, nil
}

func (ds *ChromaStore) Metric() string {
	return MetricCosine
}

func (ds *ChromaStore) collection(ctx context.Context) (chroma.Collection, error) {
	if ds.col != nil {
		return ds.col, nil
	}

	col, err := ds.client.GetCollection(ctx, ds.name)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %s: %w", ds.name, err)
	}

	ds.col = col
	return col, nil
}

// Exists reports false only when the server says the collection is not
// there. Any other failure is returned so an unreachable server is never
// mistaken for a missing collection.
func (ds *ChromaStore) Exists(ctx context.Context) (bool, error) {
	_, err := ds.collection(ctx)
	switch {
	case err == nil:
		return true, nil
	case collectionNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ragerr.ErrTransientProvider, err)
	}
}

func collectionNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "notfounderror") ||
		strings.Contains(msg, "404")
}

func (ds *ChromaStore) Count(ctx context.Context) (int, error) {
	col, err := ds.collection(ctx)
	if err != nil {
		return 0, err
	}

	return col.Count(ctx)
}

func (ds *ChromaStore) Create(ctx context.Context, dim int) error {
	col, err := ds.client.CreateCollection(ctx, ds.name,
		chroma.WithHNSWSpaceCreate(embeddings.COSINE),
	)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", ds.name, err)
	}

	ds.col = col
	return nil
}

func (ds *ChromaStore) Insert(ctx context.Context, recs []Record) error {
	col, err := ds.collection(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(recs); start += ds.requestSize {
		end := min(start+ds.requestSize, len(recs))
		if err := ds.add(ctx, col, recs[start:end]); err != nil {
			return fmt.Errorf("failed to add records %d-%d: %w", start, end, err)
		}
	}

	return nil
}

func (ds *ChromaStore) add(ctx context.Context, col chroma.Collection, recs []Record) error {
	ids := make([]chroma.DocumentID, 0, len(recs))
	texts := make([]string, 0, len(recs))
	vecs := make([]embeddings.Embedding, 0, len(recs))
	metas := make([]chroma.DocumentMetadata, 0, len(recs))

	for _, r := range recs {
		ids = append(ids, chroma.DocumentID(r.ID()))
		texts = append(texts, r.Text)
		vecs = append(vecs, embeddings.NewEmbeddingFromFloat32(r.Vector))
		metas = append(metas, chroma.NewDocumentMetadata(
			chroma.NewStringAttribute(FilePath, r.File),
			chroma.NewIntAttribute(PageIndex, int64(r.Page)),
			chroma.NewIntAttribute(ChunkIndex, int64(r.Chunk)),
			chroma.NewIntAttribute(OverlapSize, int64(r.Overlap)),
		))
	}

	return col.Add(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithEmbeddings(vecs...),
		chroma.WithMetadatas(metas...),
	)
}

func (ds *ChromaStore) Query(ctx context.Context, vec []float32, k int) ([]SearchResult, error) {
	col, err := ds.collection(ctx)
	if err != nil {
		return nil, err
	}

	r, err := col.Query(ctx,
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vec)),
		chroma.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve texts: %w", err)
	}

	docGroups := r.GetDocumentsGroups()
	if len(docGroups) == 0 {
		return []SearchResult{}, nil
	}

	docs := docGroups[0]
	metadatas := r.GetMetadatasGroups()[0]
	distances := r.GetDistancesGroups()[0]

	res := make([]SearchResult, 0, len(docs))
	for i := range len(docs) {
		meta := metadatas[i]
		file, _ := meta.GetString(FilePath)
		page, _ := meta.GetInt(PageIndex)
		chunk, _ := meta.GetInt(ChunkIndex)
		overlap, _ := meta.GetInt(OverlapSize)

		res = append(res, SearchResult{
			Text:    docs[i].ContentString(),
			File:    file,
			Page:    int(page),
			Chunk:   int(chunk),
			Overlap: int(overlap),
			// cosine space reports distance as 1 - similarity
			Score: float32(1 - float64(distances[i])),
		})
	}

	return res, nil
}

func (ds *ChromaStore) Drop(ctx context.Context) error {
	exists, err := ds.Exists(ctx)
	if err != nil || !exists {
		return err
	}

	if err := ds.client.DeleteCollection(ctx, ds.name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", ds.name, err)
	}

	ds.col = nil
	return nil
}

func (ds *ChromaStore) Close() error {
	return ds.client.Close()
}
