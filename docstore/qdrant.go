package docstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

const textKey = "text"

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// RequestSize caps the number of points sent per Upsert call.
	RequestSize int
}

// QdrantStore keeps the collection on a Qdrant server reached over gRPC.
type QdrantStore struct {
	client      *qdrant.Client
	name        string
	requestSize int
	next        uint64
}

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.RequestSize <= 0 {
		cfg.RequestSize = 100
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:      client,
		name:        cfg.Collection,
		requestSize: cfg.RequestSize,
	}, nil
}

func (s *QdrantStore) Metric() string {
	return MetricCosine
}

func (s *QdrantStore) Exists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.name)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", s.name, err)
	}

	return exists, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points in %s: %w", s.name, err)
	}

	return int(n), nil
}

func (s *QdrantStore) Create(ctx context.Context, dim int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.name, err)
	}

	s.next = 0
	return nil
}

func (s *QdrantStore) Insert(ctx context.Context, recs []Record) error {
	for start := 0; start < len(recs); start += s.requestSize {
		end := min(start+s.requestSize, len(recs))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, r := range recs[start:end] {
			points = append(points, toPoint(s.next, r))
			s.next++
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points %d-%d: %w", start, end, err)
		}
	}

	return nil
}

func (s *QdrantStore) Query(ctx context.Context, vec []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}

	found, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.name,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", s.name, err)
	}

	res := make([]SearchResult, 0, len(found))
	for _, p := range found {
		res = append(res, fromPoint(p))
	}

	return res, nil
}

func (s *QdrantStore) Drop(ctx context.Context) error {
	exists, err := s.Exists(ctx)
	if err != nil || !exists {
		return err
	}

	if err := s.client.DeleteCollection(ctx, s.name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.name, err)
	}

	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func toPoint(id uint64, r Record) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(id),
		Vectors: qdrant.NewVectors(r.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			textKey:     r.Text,
			FilePath:    r.File,
			PageIndex:   r.Page,
			ChunkIndex:  r.Chunk,
			OverlapSize: r.Overlap,
		}),
	}
}

func fromPoint(p *qdrant.ScoredPoint) SearchResult {
	payload := p.GetPayload()
	return SearchResult{
		Text:    payload[textKey].GetStringValue(),
		File:    payload[FilePath].GetStringValue(),
		Page:    int(payload[PageIndex].GetIntegerValue()),
		Chunk:   int(payload[ChunkIndex].GetIntegerValue()),
		Overlap: int(payload[OverlapSize].GetIntegerValue()),
		Score:   p.GetScore(),
	}
}
