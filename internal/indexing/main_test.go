package indexing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/methodmap/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const orbSource = `/**
 * Particle that can spawn copies of itself.
 * @role core
 */
export class Orb {
  /**
   * Create a new orb.
   * @role helper
   * @effects creates Orb
   * @consumers Game
   */
  static nova(x, y) {
    return new Orb(x, y);
  }

  render(ctx) {
    ctx.draw(this);
  }

  getRadius() {
    return this.r;
  }

  _tick() {}
}
`

const gameSource = `export class Game {
  init() {
    this.orbs = [Orb.nova(0, 0)];
  }

  handleClick(evt) {
    this.orbs.push(Orb.nova(evt.x, evt.y));
  }
}
`

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// touch moves mtime forward so the change is visible even on coarse clocks
func touch(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func newTestProject(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "src/orb.js", orbSource)
	writeFile(t, root, "src/game.ts", gameSource)

	cfg := config.Default(root)
	cfg.Index.ParallelWorkers = 2
	return cfg, root
}
