package docstore

import "fmt"

// MetricCosine is the only similarity metric the stores build indexes with.
// Scores are cosine similarities: higher is closer.
const MetricCosine = "cosine"

const (
	FilePath    = "file_path"
	PageIndex   = "page"
	ChunkIndex  = "chunk"
	OverlapSize = "overlap"
)

type Record struct {
	File    string
	Page    int
	Chunk   int
	Overlap int
	Text    string
	Vector  []float32
}

// ID is stable for a given document and chunk index.
func (r Record) ID() string {
	return fmt.Sprintf("%s#%06d", r.File, r.Chunk)
}

type SearchResult struct {
	Text    string
	File    string
	Page    int
	Chunk   int
	Overlap int
	Score   float32
}
