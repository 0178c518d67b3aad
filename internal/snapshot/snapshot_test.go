package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/methodmap/internal/config"
	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/indexing"
	"github.com/standardbeagle/methodmap/internal/storage"
)

const orbSource = `export class Orb {
  /**
   * Creates a new orb at the given position.
   * @role helper
   */
  static nova(x, y) {
    return new Orb(x, y);
  }

  spin(angle) {
    this.angle += angle;
  }
}
`

const helperSource = `export function clamp(v, lo, hi) {
  return Math.min(hi, Math.max(lo, v));
}
`

func newIndexed(t *testing.T) (*indexing.Indexer, string) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range map[string]string{"src/orb.js": orbSource, "src/util.js": helperSource} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	cfg := config.Default(root)
	cfg.Index.ParallelWorkers = 1
	ix := indexing.NewIndexer(cfg, nil)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	return ix, root
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a   b  ", "a b"},
		{"foo ( x , y ) {\n\treturn x ;\n}", "foo(x,y){return x;}"},
		{"if(a){b();}", "if(a){b();}"},
		{"return  new\tOrb( x,\n y );", "return new Orb(x,y);"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "%q", tt.in)
	}
	assert.Equal(t, Normalize("spin(a){ this.a += a; }"), Normalize("spin( a ) {\n  this.a += a;\n}"))
}

func TestCreate_RoundTrip(t *testing.T) {
	ix, root := newIndexed(t)

	snap, missing, err := Create(ix, []string{"Orb.nova", "clamp", "Orb.gone", "Orb.nova"}, map[string]int{"Orb.nova": 16})
	require.NoError(t, err)
	assert.Equal(t, []string{"Orb.gone"}, missing)
	require.Len(t, snap.Methods, 2)
	assert.Equal(t, root, snap.Root)
	assert.Equal(t, "javascript", snap.Language)

	nova := snap.Methods["Orb.nova"]
	assert.Equal(t, "Orb", nova.Class)
	assert.Equal(t, "nova", nova.Name)
	assert.Equal(t, 16, nova.Score)
	assert.Equal(t, 2, nova.Line, "starts at the doc block")
	assert.Equal(t, 8, nova.EndLine)
	assert.True(t, strings.HasPrefix(nova.Code, "/**"))
	assert.True(t, strings.HasSuffix(nova.Code, "}"))

	for key, m := range snap.Methods {
		live, ok := ix.ExtractMethodCode(key)
		require.True(t, ok)
		assert.Equal(t, m.NormalizedCode, Normalize(live))
	}

	orb := snap.Files["src/orb.js"]
	require.NotNil(t, orb)
	assert.Equal(t, []string{"Orb.nova"}, orb.MethodKeys)
	assert.Equal(t, storage.HashString(orbSource), orb.OriginalFileHash)
	assert.Equal(t, filepath.Join(root, "src", "orb.js"), orb.AbsolutePath)
}

func TestCreate_NothingToCapture(t *testing.T) {
	ix, _ := newIndexed(t)
	_, missing, err := Create(ix, []string{"Nope.none"}, nil)
	assert.Error(t, err)
	assert.Equal(t, []string{"Nope.none"}, missing)
}

func TestSaveAndLoad(t *testing.T) {
	ix, _ := newIndexed(t)
	snap, _, err := Create(ix, []string{"Orb.nova", "Orb.spin"}, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, snap.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, snap.OrderedKeys(), loaded.OrderedKeys())
	assert.Equal(t, snap.Methods["Orb.spin"].Code, loaded.Methods["Orb.spin"].Code)
	assert.Equal(t, snap.Files["src/orb.js"].OriginalFileHash, loaded.Files["src/orb.js"].OriginalFileHash)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	var fe *mmerrors.FileError
	assert.ErrorAs(t, err, &fe)

	bad := filepath.Join(t.TempDir(), "old.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"version": 7}`), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestOrderedKeysAndExtension(t *testing.T) {
	s := &Snapshot{
		Methods: map[string]*Method{
			"Orb.spin": {File: "src/orb.js", Line: 10},
			"Orb.nova": {File: "src/orb.js", Line: 2},
			"clamp":    {File: "src/util.js", Line: 1},
		},
		Files: map[string]*File{"src/orb.js": {}, "src/util.js": {}},
	}
	assert.Equal(t, []string{"Orb.nova", "Orb.spin", "clamp"}, s.OrderedKeys())
	assert.Equal(t, ".js", s.ArtifactExtension())

	s.Files["src/Game.java"] = &File{}
	assert.Equal(t, ".txt", s.ArtifactExtension())
}

func TestExtract_WritesSnapshotAndArtifact(t *testing.T) {
	ix, root := newIndexed(t)
	dir := filepath.Join(root, ".methodmap", "snapshots")

	res, err := Extract(ix, dir, []string{"Orb.spin", "Orb.nova"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Orb.nova", "Orb.spin"}, res.Keys)
	assert.True(t, strings.HasSuffix(res.ArtifactPath, ".edit.js"))
	assert.Equal(t, dir, filepath.Dir(res.SnapshotPath))

	loaded, err := Load(res.SnapshotPath)
	require.NoError(t, err)
	assert.Len(t, loaded.Methods, 2)

	artifact, err := os.ReadFile(res.ArtifactPath)
	require.NoError(t, err)
	blocks, usedMarkers, err := ParseArtifact(string(artifact), ".js", ix.Parser())
	require.NoError(t, err)
	assert.True(t, usedMarkers)
	assert.Equal(t, loaded.Methods["Orb.nova"].Code, blocks["Orb.nova"])
	assert.Equal(t, loaded.Methods["Orb.spin"].Code, blocks["Orb.spin"])
}
