package search

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/methodmap/internal/types"
)

// MethodView is one result rendered at a detail level; fields above the
// level are left empty
type MethodView struct {
	Key      string `json:"key"`
	Score    int    `json:"score"`
	Fallback bool   `json:"fallback,omitempty"`
	Expanded bool   `json:"expanded,omitempty"`

	Role        types.Role `json:"role,omitempty"`
	Description string     `json:"description,omitempty"`

	File      string               `json:"file,omitempty"`
	Class     string               `json:"class,omitempty"`
	Signature string               `json:"signature,omitempty"`
	Effects   types.Effects        `json:"effects,omitempty"`
	Consumers []string             `json:"consumers,omitempty"`
	Context   *types.MethodContext `json:"context,omitempty"`
	StartLine int                  `json:"startLine,omitempty"`
	EndLine   int                  `json:"endLine,omitempty"`

	Code string `json:"code,omitempty"`
}

// FileView is a whole file and the result keys it owns
type FileView struct {
	Path    string   `json:"path"`
	Keys    []string `json:"keys"`
	Content string   `json:"content"`
}

// LevelView is the session rendered at one detail level
type LevelView struct {
	Level   int          `json:"level"`
	Query   string       `json:"query"`
	Methods []MethodView `json:"methods"`
	Files   []FileView   `json:"files,omitempty"`

	// EstimatedTokens approximates the code payload carried by this view
	EstimatedTokens int `json:"estimatedTokens,omitempty"`
}

// GetAtLevel renders the results with increasing payload: 0 keys, 1 role and
// description, 2 signature/effects/consumers, 3 extracted code, 4 whole files
// grouped by path. Code and files are loaded once per session.
func (s *Session) GetAtLevel(level int) (*LevelView, error) {
	if level < LevelKeys || level > MaxDetailLevel {
		return nil, fmt.Errorf("detail level %d out of range 0-%d", level, MaxDetailLevel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	view := &LevelView{Level: level, Query: s.query, Methods: make([]MethodView, 0, len(s.results))}

	var code map[string]string
	if level == LevelCode {
		keys := make([]string, len(s.results))
		for i, r := range s.results {
			keys[i] = r.Key
		}
		code = s.loadCode(keys)
	}

	fileIdx := make(map[string]int)
	for _, r := range s.results {
		mv := MethodView{Key: r.Key, Score: r.Score, Fallback: r.Fallback, Expanded: r.Expanded}
		m := r.Entry
		if level >= LevelSummary && m != nil {
			mv.Role = m.Role
			mv.Description = m.Description
		}
		if level >= LevelSignatures && m != nil {
			mv.File = m.File
			mv.Class = m.Class
			mv.Signature = m.Signature
			mv.Effects = m.Effects
			mv.Consumers = m.Consumers
			if !m.Context.IsEmpty() {
				ctx := m.Context
				mv.Context = &ctx
			}
			mv.StartLine = m.StartLine
			mv.EndLine = m.EndLine
		}
		if level == LevelCode {
			mv.Code = code[r.Key]
		}
		view.Methods = append(view.Methods, mv)

		if level == LevelWholeFiles && m != nil {
			i, seen := fileIdx[m.File]
			if !seen {
				content, ok := s.loadFile(m.File)
				if !ok {
					continue
				}
				i = len(view.Files)
				fileIdx[m.File] = i
				view.Files = append(view.Files, FileView{Path: m.File, Content: content})
			}
			view.Files[i].Keys = append(view.Files[i].Keys, r.Key)
		}
	}

	lines := 0
	for _, mv := range view.Methods {
		lines += countLines(mv.Code)
	}
	for _, f := range view.Files {
		lines += countLines(f.Content)
	}
	view.EstimatedTokens = lines * TokensPerLine

	s.record(HistoryEntry{Op: OpLevel, Detail: fmt.Sprintf("level %d", level)})
	return view, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
