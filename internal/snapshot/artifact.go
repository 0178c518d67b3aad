package snapshot

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/parser"
)

// Marker comments delimiting one method in an edit artifact
const (
	BeginMarker = "@methodmap:begin"
	EndMarker   = "@methodmap:end"
)

const artifactHeader = "// methodmap edit artifact. Edit code between the markers; keep the marker lines intact."

var (
	beginLine = regexp.MustCompile(`^\s*(?://|#)\s*@methodmap:begin\s+(\S+)(?:\s+(\S+))?\s*$`)
	endLine   = regexp.MustCompile(`^\s*(?://|#)\s*@methodmap:end\s+(\S+)\s*$`)
)

// RenderArtifact writes every captured method between a marker pair:
//
//	// @methodmap:begin Orb.nova src/orb.js:3-9
//	...code...
//	// @methodmap:end Orb.nova
func RenderArtifact(s *Snapshot) string {
	var b strings.Builder
	if s.ArtifactExtension() == ".php" {
		b.WriteString("<?php\n")
	}
	b.WriteString(artifactHeader)
	b.WriteString("\n\n")

	for i, key := range s.OrderedKeys() {
		m := s.Methods[key]
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "// %s %s %s:%d-%d\n", BeginMarker, key, m.File, m.Line, m.EndLine)
		b.WriteString(m.Code)
		if !strings.HasSuffix(m.Code, "\n") {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "// %s %s\n", EndMarker, key)
	}
	return b.String()
}

// ParseArtifact splits an edited artifact into per-method code. Marker pairs
// are used when present; otherwise the text is parsed as plain source of the
// hinted language (an extension or file name) and every function found is
// mapped by its Class.method key. usedMarkers reports which path was taken.
func ParseArtifact(text, langHint string, p *parser.Parser) (blocks map[string]string, usedMarkers bool, err error) {
	blocks, found, err := parseMarkers(text)
	if err != nil {
		return nil, true, err
	}
	if found {
		return blocks, true, nil
	}

	debug.LogReinject("artifact has no markers, parsing as plain %s source", langHint)
	blocks, err = parsePlainSource(text, langHint, p)
	return blocks, false, err
}

func parseMarkers(text string) (map[string]string, bool, error) {
	blocks := make(map[string]string)
	found := false

	var (
		current string
		body    []string
		open    bool
		openAt  int
	)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSuffix(line, "\r")
		if m := beginLine.FindStringSubmatch(trimmed); m != nil {
			if open {
				return nil, true, fmt.Errorf("artifact line %d: %s %s opened before %s was closed (line %d)", i+1, BeginMarker, m[1], current, openAt)
			}
			if _, dup := blocks[m[1]]; dup {
				return nil, true, fmt.Errorf("artifact line %d: method %s appears twice", i+1, m[1])
			}
			found, open, current, openAt, body = true, true, m[1], i+1, nil
			continue
		}
		if m := endLine.FindStringSubmatch(trimmed); m != nil {
			if !open {
				return nil, true, fmt.Errorf("artifact line %d: %s %s without a matching begin", i+1, EndMarker, m[1])
			}
			if m[1] != current {
				return nil, true, fmt.Errorf("artifact line %d: %s %s does not close %s", i+1, EndMarker, m[1], current)
			}
			blocks[current] = strings.Join(body, "\n")
			open = false
			continue
		}
		if open {
			body = append(body, line)
		}
	}
	if open {
		return nil, true, fmt.Errorf("artifact: %s %s (line %d) is never closed", BeginMarker, current, openAt)
	}
	return blocks, found, nil
}

func parsePlainSource(text, langHint string, p *parser.Parser) (map[string]string, error) {
	if p == nil {
		return nil, fmt.Errorf("artifact has no markers and no parser is available")
	}
	name := langHint
	if name == "" {
		return nil, fmt.Errorf("artifact has no markers and no language hint")
	}
	if !strings.Contains(name, ".") {
		name = "." + name
	}
	if filepath.Ext(name) == name {
		name = "artifact" + name
	}

	content := []byte(text)
	fs, err := p.Parse(name, content)
	if err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}
	blocks := make(map[string]string, len(fs.Functions))
	for i := range fs.Functions {
		fn := &fs.Functions[i]
		blocks[fn.Key] = fn.Code(content)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("artifact has no markers and no recognizable methods")
	}
	return blocks, nil
}
