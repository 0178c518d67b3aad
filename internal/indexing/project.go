package indexing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/standardbeagle/methodmap/internal/config"
)

// ConfigMarkers are checked all the way up the tree before any other marker
var ConfigMarkers = []string{
	config.KDLFileName,
	config.TOMLFileName,
}

// ProjectMarkers are well-known project definition files for the supported languages
var ProjectMarkers = []string{
	".git",
	"package.json",
	"tsconfig.json",
	"pom.xml",
	"build.gradle",
	"composer.json",
}

// FindProjectRoot walks up from startPath to the project root. A methodmap
// config anywhere above wins over nearer project markers. Returns the root and
// the marker that identified it.
func FindProjectRoot(startPath string) (string, string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		startPath = cwd
	}
	startPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", "", err
	}
	if info, err := os.Stat(startPath); err != nil || !info.IsDir() {
		return "", "", errors.New("start path must be an existing directory")
	}

	if root, marker, ok := walkUp(startPath, ConfigMarkers); ok {
		return root, marker, nil
	}
	if root, marker, ok := walkUp(startPath, ProjectMarkers); ok {
		return root, marker, nil
	}
	return "", "", fmt.Errorf("no project root detected from path: %s", startPath)
}

func walkUp(start string, markers []string) (string, string, bool) {
	current := start
	for {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current, marker, true
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", "", false
		}
		current = parent
	}
}
