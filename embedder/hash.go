package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultHashDimension = 256

// HashEmbedder is a local, offline embedder based on signed feature hashing
// of lower-cased word tokens. It is deterministic and free, which makes it
// useful for development and tests; retrieval quality is lexical only.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}

	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Model() string {
	return fmt.Sprintf("hash-%d", e.dim)
}

func (e *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	v := make(Vector, e.dim)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()

		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		v[int(sum%uint32(e.dim))] += sign
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}

	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}

	return v, nil
}

func (e *HashEmbedder) EmbedMany(ctx context.Context, texts []string) ([]Vector, error) {
	res := make([]Vector, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}

	return res, nil
}
