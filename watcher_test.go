package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gamma-omg/legal-rag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRebuilder struct {
	mu      sync.Mutex
	resets  int
	ensures int
}

func (r *fakeRebuilder) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	return nil
}

func (r *fakeRebuilder) EnsureReady(ctx context.Context) (*rag.Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensures++
	return &rag.Index{Count: 1}, nil
}

func (r *fakeRebuilder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets, r.ensures
}

func (r *fakeRebuilder) rebuilds() int {
	_, ensures := r.counts()
	return ensures
}

func startWatcher(t *testing.T, sources ...string) *fakeRebuilder {
	idx := &fakeRebuilder{}
	dw := DocWatcher{
		log:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		sources:          sources,
		mergeEventsDelay: 50 * time.Millisecond,
		index:            idx,
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, dw.Watch(ctx))
	time.Sleep(50 * time.Millisecond)

	return idx
}

func Test_Watch_MergesEvents(t *testing.T) {
	tmp := t.TempDir()
	idx := startWatcher(t, tmp)

	for _, name := range []string{"f1.txt", "f2.txt", "f3.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmp, name), []byte(name), 0o644))
	}

	assert.Eventually(t, func() bool { return idx.rebuilds() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	resets, ensures := idx.counts()
	assert.Equal(t, 1, resets)
	assert.Equal(t, 1, ensures)

	require.NoError(t, os.Rename(filepath.Join(tmp, "f1.txt"), filepath.Join(tmp, "f4.txt")))
	require.NoError(t, os.Remove(filepath.Join(tmp, "f2.txt")))

	assert.Eventually(t, func() bool { return idx.rebuilds() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func Test_Watch_Subdirectories(t *testing.T) {
	tmp := t.TempDir()
	idx := startWatcher(t, tmp)

	sub := filepath.Join(tmp, "guides")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Eventually(t, func() bool { return idx.rebuilds() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "stalking.txt"), []byte("content"), 0o644))
	assert.Eventually(t, func() bool { return idx.rebuilds() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func Test_Watch_IgnoresHiddenFiles(t *testing.T) {
	tmp := t.TempDir()
	idx := startWatcher(t, tmp)

	require.NoError(t, os.WriteFile(filepath.Join(tmp, ".f1.txt.swp"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)

	assert.Zero(t, idx.rebuilds())
}

func Test_Watch_SingleFileSource(t *testing.T) {
	tmp := t.TempDir()
	doc := filepath.Join(tmp, "act.txt")
	require.NoError(t, os.WriteFile(doc, []byte("v1"), 0o644))

	idx := startWatcher(t, doc)

	require.NoError(t, os.WriteFile(filepath.Join(tmp, "other.txt"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, idx.rebuilds())

	require.NoError(t, os.WriteFile(doc, []byte("v2"), 0o644))
	assert.Eventually(t, func() bool { return idx.rebuilds() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func Test_Watch_MissingSource(t *testing.T) {
	dw := DocWatcher{
		log:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		sources:          []string{filepath.Join(t.TempDir(), "missing")},
		mergeEventsDelay: time.Millisecond,
		index:            &fakeRebuilder{},
	}

	assert.Error(t, dw.Watch(context.Background()))
}
