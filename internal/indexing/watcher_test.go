package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReindexesAndRemoves(t *testing.T) {
	cfg, root := newTestProject(t)
	cfg.Index.WatchDebounceMs = 20
	ix := NewIndexer(cfg, nil)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	w, err := NewWatcher(ix)
	require.NoError(t, err)

	batches := make(chan WatchBatch, 16)
	w.OnBatch(func(b WatchBatch) { batches <- b })
	require.NoError(t, w.Start(context.Background()))
	defer func() { assert.NoError(t, w.Stop()) }()
	assert.True(t, w.GetStats().IsActive)

	writeFile(t, root, "src/spark.js", "class Spark { flash() {} }\n")
	require.Eventually(t, func() bool {
		_, ok := ix.Method("Spark.flash")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "spark.js")))
	require.Eventually(t, func() bool {
		_, ok := ix.Method("Spark.flash")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case b := <-batches:
		assert.Empty(t, b.Errors)
	case <-time.After(time.Second):
		t.Fatal("no batch reported")
	}

	assert.Positive(t, w.GetStats().EventsProcessed)
}

func TestWatcher_IgnoresIneligibleFiles(t *testing.T) {
	cfg, root := newTestProject(t)
	cfg.Index.WatchDebounceMs = 20
	ix := NewIndexer(cfg, nil)

	w, err := NewWatcher(ix)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	writeFile(t, root, "notes.txt", "hello")
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, ix.Files())

	require.NoError(t, w.Stop())
	assert.False(t, w.GetStats().IsActive)
}
