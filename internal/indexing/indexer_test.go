package indexing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/methodmap/internal/config"
	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/types"
)

func TestIndexAll_BuildsEntries(t *testing.T) {
	cfg, _ := newTestProject(t)
	ix := NewIndexer(cfg, nil)

	stats, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Updated)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 6, stats.Methods)
	assert.Equal(t, 2, stats.Classes)

	nova, ok := ix.Method("Orb.nova")
	require.True(t, ok)
	assert.Equal(t, "src/orb.js", nova.File)
	assert.Equal(t, "Orb", nova.Class)
	assert.Equal(t, "nova(x, y)", nova.Signature)
	assert.True(t, nova.IsStatic)
	assert.Equal(t, types.RoleHelper, nova.Role)
	assert.Equal(t, types.RoleSourceDoc, nova.RoleSource)
	assert.Equal(t, "Create a new orb.", nova.Description)
	assert.Equal(t, []string{"Orb"}, nova.Effects[types.EffectCreates])
	assert.Equal(t, []string{"Game"}, nova.Consumers)
	assert.NotEmpty(t, nova.BodyHash)
	assert.Equal(t, 12, nova.StartLine)

	render, _ := ix.Method("Orb.render")
	assert.Equal(t, types.RoleInternal, render.Role)
	assert.Equal(t, types.RoleSourceDefault, render.RoleSource)

	radius, _ := ix.Method("Orb.getRadius")
	assert.Equal(t, types.RoleService, radius.Role)
	assert.Equal(t, types.RoleSourceHeuristic, radius.RoleSource)

	tick, _ := ix.Method("Orb._tick")
	assert.True(t, tick.IsPrivate)
	assert.Equal(t, types.RoleInternal, tick.Role)

	initM, _ := ix.Method("Game.init")
	assert.Equal(t, types.RoleEntry, initM.Role)
	click, _ := ix.Method("Game.handleClick")
	assert.Equal(t, types.RoleFlow, click.Role)

	orb, ok := ix.Class("Orb")
	require.True(t, ok)
	assert.Equal(t, types.RoleCore, orb.Role)
	assert.Equal(t, 4, orb.MethodCount)

	summary := ix.Stats()
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 1, summary.Languages["javascript"])
	assert.Equal(t, 1, summary.Languages["typescript"])

	assert.Len(t, ix.MethodsByClass("Game"), 2)
	assert.Len(t, ix.Classes(), 2)
	assert.Len(t, ix.Files(), 2)
}

func TestIndexAll_Idempotent(t *testing.T) {
	cfg, _ := newTestProject(t)
	ix := NewIndexer(cfg, nil)

	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	stats, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 6, stats.Methods)

	forced, err := ix.IndexAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, forced.Updated)
}

func TestIndexAll_PersistsAcrossInstances(t *testing.T) {
	cfg, _ := newTestProject(t)
	first := NewIndexer(cfg, nil)
	_, err := first.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.FileExists(t, cfg.IndexPath())

	second := NewIndexer(cfg, nil)
	require.NoError(t, second.Load())
	_, ok := second.Method("Orb.nova")
	assert.True(t, ok)

	stats, err := second.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Updated)
}

func TestLoad_DifferentFormatStartsEmpty(t *testing.T) {
	cfg, _ := newTestProject(t)
	require.NoError(t, os.MkdirAll(cfg.DataDir(), 0o755))
	require.NoError(t, os.WriteFile(cfg.IndexPath(), []byte(`{"version": -1, "methods": {"X.y": {"key": "X.y"}}}`), 0o644))

	ix := NewIndexer(cfg, nil)
	require.NoError(t, ix.Load())
	assert.Empty(t, ix.Methods())
}

func TestIndexAll_PrunesDeletedFiles(t *testing.T) {
	cfg, root := newTestProject(t)
	ix := NewIndexer(cfg, nil)
	before, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "game.ts")))

	after, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Deleted)
	assert.Less(t, after.Methods, before.Methods)

	_, ok := ix.Method("Game.init")
	assert.False(t, ok)
	_, ok = ix.Class("Game")
	assert.False(t, ok)
	for _, m := range ix.Methods() {
		assert.NotEqual(t, "src/game.ts", m.File)
	}
}

func TestIndexAll_ReindexesChangedFile(t *testing.T) {
	cfg, root := newTestProject(t)
	ix := NewIndexer(cfg, nil)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	oldNova, _ := ix.Method("Orb.nova")

	path := writeFile(t, root, "src/orb.js", strings.Replace(orbSource, "return new Orb(x, y);", "return new Orb(x, y, 1);", 1))
	touch(t, path)

	stats, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Skipped)

	newNova, _ := ix.Method("Orb.nova")
	assert.NotEqual(t, oldNova.BodyHash, newNova.BodyHash)
	render, _ := ix.Method("Orb.render")
	assert.NotNil(t, render)
}

func TestIndexAll_ParseFailureDoesNotAbort(t *testing.T) {
	cfg, root := newTestProject(t)
	cfg.Index.Extensions = append(cfg.Index.Extensions, ".rb")
	writeFile(t, root, "scripts/tool.rb", "def x; end\n")

	ix := NewIndexer(cfg, nil)
	stats, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.Updated)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "scripts/tool.rb", stats.Failures[0].File)

	_, ok := ix.Method("Orb.nova")
	assert.True(t, ok)
}

func TestIndexAll_CheckpointsEveryBatch(t *testing.T) {
	cfg, root := newTestProject(t)
	writeFile(t, root, "src/extra.js", "function extra() { return 1; }\n")
	cfg.Index.CheckpointEvery = 1

	ix := NewIndexer(cfg, nil)
	stats, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Updated)

	reloaded := NewIndexer(cfg, nil)
	require.NoError(t, reloaded.Load())
	assert.Len(t, reloaded.Files(), 3)
}

func TestIndexAll_CancelledContext(t *testing.T) {
	cfg, _ := newTestProject(t)
	ix := NewIndexer(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ix.IndexAll(ctx, false)
	require.Error(t, err)

	var idxErr *mmerrors.IndexingError
	if errors.As(err, &idxErr) {
		assert.True(t, idxErr.IsRecoverable())
	}

	stats, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Methods)
}

func TestExtractMethodCode(t *testing.T) {
	cfg, _ := newTestProject(t)
	ix := NewIndexer(cfg, nil)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	code, ok := ix.ExtractMethodCode("Orb.nova")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(code, "/**\n   * Create a new orb."))
	assert.True(t, strings.HasSuffix(code, "return new Orb(x, y);\n  }"))

	src, ok := ix.ExtractMethod("Orb.nova")
	require.True(t, ok)
	entry, _ := ix.Method("Orb.nova")
	assert.Equal(t, entry.BodyHash, src.BodyHash)
	assert.Equal(t, 6, src.StartLine)
	assert.Equal(t, 14, src.EndLine)

	_, ok = ix.ExtractMethodCode("Orb.missing")
	assert.False(t, ok)
}

func TestIndexFileAndRemoveFile(t *testing.T) {
	cfg, root := newTestProject(t)
	ix := NewIndexer(cfg, nil)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	writeFile(t, root, "src/spark.js", "class Spark { flash() {} }\n")
	changed, err := ix.IndexFile(context.Background(), "src/spark.js")
	require.NoError(t, err)
	assert.True(t, changed)
	_, ok := ix.Method("Spark.flash")
	assert.True(t, ok)

	changed, err = ix.IndexFile(context.Background(), "src/spark.js")
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, 1, ix.RemoveFile("src/spark.js"))
	_, ok = ix.Method("Spark.flash")
	assert.False(t, ok)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "orb.js")))
	changed, err = ix.IndexFile(context.Background(), "src/orb.js")
	require.NoError(t, err)
	assert.True(t, changed)
	_, ok = ix.Method("Orb.nova")
	assert.False(t, ok)
}

const sharedSource = `function setup() {}

class Util {
  run() {}
}
`

func TestIndexAll_SameKeyInTwoFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.js", sharedSource)
	writeFile(t, root, "b.js", sharedSource)
	cfg := config.Default(root)
	ix := NewIndexer(cfg, nil)

	stats, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Methods)
	assert.Equal(t, 2, stats.Classes)

	owners := map[string]string{}
	for _, m := range ix.Methods() {
		owners[m.Key] = m.File
	}
	assert.Equal(t, map[string]string{
		"setup":      "a.js",
		"setup#2":    "b.js",
		"Util.run":   "a.js",
		"Util.run#2": "b.js",
	}, owners)

	util, ok := ix.Class("Util")
	require.True(t, ok)
	assert.Equal(t, "a.js", util.File)
	util2, ok := ix.Class("Util#2")
	require.True(t, ok)
	assert.Equal(t, "b.js", util2.File)
	assert.Equal(t, "Util", util2.Name)

	code, ok := ix.ExtractMethodCode("Util.run#2")
	require.True(t, ok)
	assert.Contains(t, code, "run() {}")

	stats, err = ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 2, stats.Skipped)

	require.NoError(t, os.Remove(filepath.Join(root, "b.js")))
	stats, err = ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 2, stats.Methods)

	setup, ok := ix.Method("setup")
	require.True(t, ok)
	assert.Equal(t, "a.js", setup.File)
	_, ok = ix.Method("setup#2")
	assert.False(t, ok)
	assert.Len(t, ix.Classes(), 1)
}

func TestRemoveFile_FreedKeyGoesToNextOwner(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.js", sharedSource)
	writeFile(t, root, "b.js", sharedSource)
	ix := NewIndexer(config.Default(root), nil)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, ix.RemoveFile("a.js"))

	setup, ok := ix.Method("setup")
	require.True(t, ok)
	assert.Equal(t, "b.js", setup.File)
	code, ok := ix.ExtractMethodCode("setup")
	require.True(t, ok)
	assert.Contains(t, code, "function setup()")

	util, ok := ix.Class("Util")
	require.True(t, ok)
	assert.Equal(t, "b.js", util.File)
}

func TestIndexAll_ReparsesFileWithMissingRows(t *testing.T) {
	cfg, _ := newTestProject(t)
	ix := NewIndexer(cfg, nil)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	ix.mu.Lock()
	delete(ix.idx.Methods, "Orb.render")
	ix.mu.Unlock()

	stats, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Skipped)
	_, ok := ix.Method("Orb.render")
	assert.True(t, ok)
}
