package docstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func Test_QdrantPayload(t *testing.T) {
	rec := Record{
		File:    "guides/stalking.md",
		Page:    3,
		Chunk:   42,
		Overlap: 100,
		Text:    "Report stalking to the police on 101.",
		Vector:  []float32{0.6, 0.8},
	}

	pt := toPoint(7, rec)
	assert.Equal(t, uint64(7), pt.GetId().GetNum())

	res := fromPoint(&qdrant.ScoredPoint{Payload: pt.Payload, Score: 0.8})
	assert.Equal(t, SearchResult{
		Text:    rec.Text,
		File:    rec.File,
		Page:    3,
		Chunk:   42,
		Overlap: 100,
		Score:   0.8,
	}, res)
}
