// Package pathutil converts between absolute filesystem paths and the
// project-relative, forward-slash keys used in the index and snapshots.
//
// The index is portable across machines and operating systems, so every
// persisted path is relative to the project root and uses '/' separators.
// Absolute paths only exist at the filesystem boundary.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails or path is already relative.
//
// Examples:
//   - ToRelative("/home/user/project/src/orb.js", "/home/user/project") → "src/orb.js"
//   - ToRelative("/other/location/file.js", "/home/user/project") → "/other/location/file.js" (outside root)
//   - ToRelative("src/orb.js", "/home/user/project") → "src/orb.js" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}

	// Outside the root the absolute path is clearer
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}

	return relPath
}

// ToKey converts an absolute path into the index key form: root-relative with '/' separators
func ToKey(absPath, rootDir string) string {
	return filepath.ToSlash(ToRelative(absPath, rootDir))
}

// FromKey resolves an index key back to an absolute path under rootDir
func FromKey(key, rootDir string) string {
	p := filepath.FromSlash(key)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(rootDir, p)
}

// IsWithin reports whether path lies inside rootDir (or is rootDir)
func IsWithin(path, rootDir string) bool {
	rel, err := filepath.Rel(filepath.Clean(rootDir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
