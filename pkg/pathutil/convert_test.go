package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToRelative(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	tests := []struct {
		name     string
		absPath  string
		rootDir  string
		expected string
	}{
		{"simple relative path", "/home/user/project/src/orb.js", "/home/user/project", "src/orb.js"},
		{"nested relative path", "/home/user/project/src/space/galaxy.ts", "/home/user/project", "src/space/galaxy.ts"},
		{"same directory", "/home/user/project", "/home/user/project", "."},
		{"already relative path", "src/orb.js", "/home/user/project", "src/orb.js"},
		{"path outside root", "/other/location/file.js", "/home/user/project", "/other/location/file.js"},
		{"sibling with shared prefix", "/home/user/project2/a.js", "/home/user/project", "/home/user/project2/a.js"},
		{"dotted file name inside root", "/home/user/project/..hidden.js", "/home/user/project", "..hidden.js"},
		{"empty path", "", "/home/user/project", ""},
		{"empty root", "/home/user/project/a.js", "", "/home/user/project/a.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToRelative(tt.absPath, tt.rootDir))
		})
	}
}

func TestToKeyFromKeyRoundTrip(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "src", "orb.js")

	key := ToKey(abs, root)
	assert.Equal(t, "src/orb.js", key)
	assert.Equal(t, abs, FromKey(key, root))
}

func TestIsWithin(t *testing.T) {
	root := t.TempDir()
	assert.True(t, IsWithin(filepath.Join(root, "a", "b.js"), root))
	assert.True(t, IsWithin(root, root))
	assert.False(t, IsWithin(filepath.Dir(root), root))
}
