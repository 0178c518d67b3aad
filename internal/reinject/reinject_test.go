package reinject

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
	"github.com/standardbeagle/methodmap/internal/parser"
	"github.com/standardbeagle/methodmap/internal/snapshot"
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

const utilSource = `export function clamp(v, lo, hi) {
  return Math.min(hi, Math.max(lo, v));
}
`

type fixture struct {
	root     string
	orbPath  string
	cfg      *config.Config
	ix       *indexing.Indexer
	reinject *Reinjector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, content := range map[string]string{"src/orb.js": orbSource, "src/util.js": utilSource} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	cfg := config.Default(root)
	cfg.Index.ParallelWorkers = 1
	ix := indexing.NewIndexer(cfg, nil)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	return &fixture{
		root:     root,
		orbPath:  filepath.Join(root, "src", "orb.js"),
		cfg:      cfg,
		ix:       ix,
		reinject: New(cfg.Reinject, ix.Parser()),
	}
}

func (f *fixture) extract(t *testing.T, keys ...string) *snapshot.ExtractResult {
	t.Helper()
	res, err := snapshot.Extract(f.ix, filepath.Join(f.root, ".methodmap", "snapshots"), keys, nil)
	require.NoError(t, err)
	return res
}

// editArtifact replaces old with new once in the artifact file
func editArtifact(t *testing.T, path, old, new string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), old)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(b), old, new, 1)), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReinject_EditedMethodReplacedWithBackup(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.nova")
	editArtifact(t, ex.ArtifactPath, "return new Orb(x, y);", "return new Orb(y, x);")

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 0, res.FailedCount)
	assert.Equal(t, []string{"Orb.nova"}, res.Modified)
	assert.Equal(t, []string{"src/orb.js"}, res.Files)

	want := strings.Replace(orbSource, "return new Orb(x, y);", "return new Orb(y, x);", 1)
	assert.Equal(t, want, readFile(t, f.orbPath))

	// the method text in the file matches the edited block exactly
	artifact := readFile(t, ex.ArtifactPath)
	blocks, _, err := snapshot.ParseArtifact(artifact, ".js", nil)
	require.NoError(t, err)
	content := []byte(readFile(t, f.orbPath))
	fs, err := parser.New(0).Parse("orb.js", content)
	require.NoError(t, err)
	nova, ok := fs.Function("Orb.nova")
	require.True(t, ok)
	assert.Equal(t, blocks["Orb.nova"], nova.Code(content))

	backup := f.orbPath + ".backup"
	assert.Equal(t, []string{backup}, res.Backups)
	assert.Equal(t, orbSource, readFile(t, backup))

	assert.Contains(t, res.Diffs["Orb.nova"], "-    return new Orb(x, y);")
	assert.Contains(t, res.Diffs["Orb.nova"], "+    return new Orb(y, x);")
}

func TestReinject_RefusesDriftedFile(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.nova")
	editArtifact(t, ex.ArtifactPath, "return new Orb(x, y);", "return new Orb(y, x);")

	drifted := orbSource + "// touched by someone else\n"
	writeFile(t, f.orbPath, drifted)

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{})
	assert.Nil(t, res)
	var ie *mmerrors.IntegrityError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Files, 1)
	assert.Equal(t, "src/orb.js", ie.Files[0].Path)
	assert.False(t, ie.Files[0].Missing)

	assert.Equal(t, drifted, readFile(t, f.orbPath), "nothing written")
	assert.NoFileExists(t, f.orbPath+".backup")

	res, err = f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{Force: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Drifted, 1)
	assert.Contains(t, readFile(t, f.orbPath), "return new Orb(y, x);")
	assert.Contains(t, readFile(t, f.orbPath), "// touched by someone else")
}

func TestReinject_MissingFileIsIntegrityFailure(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.nova")
	editArtifact(t, ex.ArtifactPath, "return new Orb(x, y);", "return new Orb(y, x);")
	require.NoError(t, os.Remove(f.orbPath))

	_, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{})
	var ie *mmerrors.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.Files[0].Missing)

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{Force: true})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "file no longer exists", res.Failed[0].Reason)
	assert.NoFileExists(t, f.orbPath)
}

func TestReinject_NormalizedWindowMatch(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.nova")
	editArtifact(t, ex.ArtifactPath, "return new Orb(x, y);", "return new Orb(y, x);")

	// layout-only drift defeats the exact match but not the window scan
	writeFile(t, f.orbPath, strings.Replace(orbSource, "return new Orb(x, y);", "return new Orb( x,  y );", 1))

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{Force: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"Orb.nova"}, res.Modified)

	want := strings.Replace(orbSource, "return new Orb(x, y);", "return new Orb(y, x);", 1)
	assert.Equal(t, want, readFile(t, f.orbPath))
}

func TestReinject_UnlocatableMethodFailsAlone(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.nova", "Orb.spin")
	editArtifact(t, ex.ArtifactPath, "return new Orb(x, y);", "return new Orb(y, x);")
	editArtifact(t, ex.ArtifactPath, "this.angle += angle;", "this.angle -= angle;")

	drifted := strings.Replace(orbSource, "return new Orb(x, y);", "return Orb.make(x, y, 0);", 1)
	writeFile(t, f.orbPath, drifted)

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{Force: true})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, []string{"Orb.spin"}, res.Modified)

	require.Len(t, res.Failed, 1)
	failure := res.Failed[0]
	assert.Equal(t, "Orb.nova", failure.Key)
	assert.Equal(t, "src/orb.js", failure.File)
	assert.Equal(t, 2, failure.BestLine)
	assert.Greater(t, failure.Similarity, 0.5)
	assert.Less(t, failure.Similarity, 1.0)

	content := readFile(t, f.orbPath)
	assert.Contains(t, content, "return Orb.make(x, y, 0);", "failed method left alone")
	assert.Contains(t, content, "this.angle -= angle;")
}

func TestReinject_SyntaxGuard(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.nova")
	editArtifact(t, ex.ArtifactPath, "return new Orb(x, y);", "return new Orb(x, y;")

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].Reason, "syntax errors")
	assert.Empty(t, res.Modified)
	assert.Equal(t, orbSource, readFile(t, f.orbPath))
	assert.NoFileExists(t, f.orbPath+".backup")
}

func TestReinject_DryRunAndNoBackup(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.nova")
	editArtifact(t, ex.ArtifactPath, "return new Orb(x, y);", "return new Orb(y, x);")

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []string{"Orb.nova"}, res.Modified)
	assert.Equal(t, []string{"src/orb.js"}, res.Files)
	assert.Empty(t, res.Backups)
	assert.Contains(t, res.Diffs["Orb.nova"], "+    return new Orb(y, x);")
	assert.Equal(t, orbSource, readFile(t, f.orbPath))

	res, err = f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{NoBackup: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Backups)
	assert.NoFileExists(t, f.orbPath+".backup")
	assert.Contains(t, readFile(t, f.orbPath), "return new Orb(y, x);")
}

func TestReinject_UnchangedAbsentAndUnknownKeys(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.nova", "Orb.spin", "clamp")

	artifact := readFile(t, ex.ArtifactPath)
	start := strings.Index(artifact, "// @methodmap:begin clamp")
	end := strings.Index(artifact, "// @methodmap:end clamp\n") + len("// @methodmap:end clamp\n")
	require.True(t, start >= 0 && end > start)
	artifact = artifact[:start] + artifact[end:]
	// reformatting alone is not a modification
	artifact = strings.Replace(artifact, "this.angle += angle;", "this.angle  +=  angle ;", 1)
	artifact += "// @methodmap:begin Ghost.walk\nwalk() {}\n// @methodmap:end Ghost.walk\n"
	writeFile(t, ex.ArtifactPath, artifact)

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.UnchangedCount)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, []string{"clamp"}, res.Absent)
	assert.Equal(t, []string{"Ghost.walk"}, res.Unknown)
	assert.Empty(t, res.Files)
	assert.Equal(t, orbSource, readFile(t, f.orbPath))
	assert.NoFileExists(t, f.orbPath+".backup")
}

func TestReinject_PlainSourceArtifact(t *testing.T) {
	f := newFixture(t)
	ex := f.extract(t, "Orb.spin")

	plain := "class Orb {\n  spin(angle) {\n    this.angle = angle % 360;\n  }\n}\n"
	writeFile(t, ex.ArtifactPath, plain)

	res, err := f.reinject.Reinject(ex.SnapshotPath, ex.ArtifactPath, Options{NoBackup: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"Orb.spin"}, res.Modified)
	assert.Contains(t, readFile(t, f.orbPath), "  spin(angle) {\n    this.angle = angle % 360;\n  }\n}")
}
