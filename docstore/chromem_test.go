package docstore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChromem(t *testing.T) *ChromemStore {
	return NewChromemStore(ChromemConfig{
		Path:       filepath.Join(t.TempDir(), "vectors"),
		Collection: "legal",
	})
}

func Test_ChromemStore_ExistsBeforeCreate(t *testing.T) {
	s := newChromem(t)

	exists, err := s.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = os.Stat(s.cfg.Path)
	assert.True(t, os.IsNotExist(err))
}

func Test_ChromemStore_InsertQuery(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	require.NoError(t, s.Create(ctx, 2))
	require.NoError(t, s.Insert(ctx, []Record{
		{File: "a.txt", Page: 0, Chunk: 0, Text: "north", Vector: []float32{0, 1}},
		{File: "a.txt", Page: 1, Chunk: 1, Overlap: 2, Text: "east", Vector: []float32{1, 0}},
		{File: "b.txt", Page: 0, Chunk: 0, Text: "north east", Vector: []float32{0.7071, 0.7071}},
	}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := s.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "east", res[0].Text)
	assert.Equal(t, "a.txt", res[0].File)
	assert.Equal(t, 1, res[0].Page)
	assert.Equal(t, 1, res[0].Chunk)
	assert.Equal(t, 2, res[0].Overlap)
	assert.InDelta(t, 1.0, res[0].Score, 1e-4)
	assert.Equal(t, "north east", res[1].Text)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func Test_ChromemStore_QueryCapsAtCount(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	require.NoError(t, s.Create(ctx, 2))
	require.NoError(t, s.Insert(ctx, []Record{
		{File: "a.txt", Text: "only", Vector: []float32{1, 0}},
	}))

	res, err := s.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = s.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func Test_ChromemStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectors")
	cfg := ChromemConfig{Path: dir, Collection: "legal"}

	s := NewChromemStore(cfg)
	require.NoError(t, s.Create(ctx, 2))
	require.NoError(t, s.Insert(ctx, []Record{
		{File: "a.txt", Text: "kept", Vector: []float32{1, 0}},
		{File: "a.txt", Chunk: 1, Text: "also kept", Vector: []float32{0, 1}},
	}))
	require.NoError(t, s.Close())

	reopened := NewChromemStore(cfg)
	exists, err := reopened.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func Test_ChromemStore_Drop(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	require.NoError(t, s.Drop(ctx))

	require.NoError(t, s.Create(ctx, 2))
	require.NoError(t, s.Insert(ctx, []Record{{File: "a.txt", Text: "x", Vector: []float32{1, 0}}}))
	require.NoError(t, s.Drop(ctx))

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func Test_Record_ID(t *testing.T) {
	assert.Equal(t, "act.pdf#000012", Record{File: "act.pdf", Chunk: 12}.ID())
}

func Test_ChromemStore_CorruptFiles(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	require.NoError(t, s.Create(ctx, 2))
	require.NoError(t, s.Insert(ctx, []Record{{File: "a.txt", Text: "north", Vector: []float32{0, 1}}}))
	require.NoError(t, s.Close())

	err := filepath.WalkDir(s.cfg.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		return os.WriteFile(path, []byte("garbage"), 0o644)
	})
	require.NoError(t, err)

	reopened := NewChromemStore(s.cfg)
	_, err = reopened.Exists(ctx)
	assert.ErrorIs(t, err, ragerr.ErrIndexCorrupt)

	require.NoError(t, reopened.Drop(ctx))
	require.NoError(t, reopened.Create(ctx, 2))
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
