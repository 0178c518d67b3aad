package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreParser matches project-relative paths against .gitignore rules.
// Later patterns override earlier ones, and a path inside an ignored
// directory stays ignored regardless of negations.
type GitignoreParser struct {
	patterns []GitignorePattern
}

type GitignorePattern struct {
	Pattern   string // original line
	Glob      string // doublestar glob matched against slash-separated relative paths
	Negate    bool
	Directory bool
}

func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{}
}

// LoadGitignore loads patterns from rootPath/.gitignore; a missing file is not an error
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	file, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return gp.Read(file)
}

// Read parses gitignore lines from r
func (gp *GitignoreParser) Read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		gp.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// AddPattern adds one gitignore line; blank lines and comments are ignored
func (gp *GitignoreParser) AddPattern(line string) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	p := GitignorePattern{Pattern: line}
	body := line
	switch {
	case strings.HasPrefix(body, `\#`), strings.HasPrefix(body, `\!`):
		body = body[1:]
	case strings.HasPrefix(body, "!"):
		p.Negate = true
		body = body[1:]
	}

	if strings.HasSuffix(body, "/") {
		p.Directory = true
		body = strings.TrimRight(body, "/")
	}
	if body == "" {
		return
	}

	// A slash anywhere but the end anchors the pattern to the root
	if strings.Contains(body, "/") {
		p.Glob = strings.TrimPrefix(body, "/")
	} else {
		p.Glob = "**/" + body
	}

	if !doublestar.ValidatePattern(p.Glob) {
		return
	}
	gp.patterns = append(gp.patterns, p)
}

// Patterns returns the parsed patterns in file order
func (gp *GitignoreParser) Patterns() []GitignorePattern {
	return gp.patterns
}

// ShouldIgnore reports whether relPath (slash or OS separated) is ignored
func (gp *GitignoreParser) ShouldIgnore(relPath string, isDir bool) bool {
	if len(gp.patterns) == 0 {
		return false
	}
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if relPath == "" || relPath == "." {
		return false
	}

	parts := strings.Split(relPath, "/")
	for i := 1; i < len(parts); i++ {
		if gp.match(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return gp.match(relPath, isDir)
}

func (gp *GitignoreParser) match(path string, isDir bool) bool {
	ignored := false
	for _, p := range gp.patterns {
		if p.Directory && !isDir {
			continue
		}
		if ok, _ := doublestar.Match(p.Glob, path); ok {
			ignored = !p.Negate
		}
	}
	return ignored
}
