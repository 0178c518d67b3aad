package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Version int               `json:"version"`
	Items   map[string]string `json:"items"`
}

func TestHashBytes_StableAndDistinct(t *testing.T) {
	a := HashBytes([]byte("class Orb {}"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, HashBytes([]byte("class Orb {}")))
	assert.Equal(t, a, HashString("class Orb {}"))
	assert.NotEqual(t, a, HashBytes([]byte("class Orb { }")))
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.js")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashString("x"), h)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWriteAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.json")
	in := doc{Version: 2, Items: map[string]string{"a": "b"}}
	require.NoError(t, WriteJSON(path, in))

	var out doc
	found, err := ReadJSON(path, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadJSON_Missing(t *testing.T) {
	var out doc
	found, err := ReadJSON(filepath.Join(t.TempDir(), "none.json"), &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadJSON_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var out doc
	found, err := ReadJSON(path, &out)
	assert.True(t, found)
	assert.Error(t, err)
}

func TestWriteFileAtomic_PreservesMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.js")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	require.NoError(t, WriteFileAtomic(path, []byte("new"), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	data, _ := os.ReadFile(path)
	assert.Equal(t, "new", string(data))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.js")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))

	require.NoError(t, CopyFile(src, src+".backup"))
	data, err := os.ReadFile(src + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}
