// Package snapshot captures methods verbatim before they are edited outside
// the project, and renders and parses the edit artifact that carries them.
//
// A snapshot is written once per extraction and never modified. Its per-file
// content hashes are the integrity anchor the reinjector checks before it
// touches any file.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/indexing"
	"github.com/standardbeagle/methodmap/internal/parser"
	"github.com/standardbeagle/methodmap/internal/storage"
	"github.com/standardbeagle/methodmap/internal/types"
	"github.com/standardbeagle/methodmap/internal/version"
)

// FormatVersion of the persisted snapshot document
const FormatVersion = version.SnapshotFormat

// LanguageMixed marks a snapshot spanning several languages
const LanguageMixed = "mixed"

// Method is one captured method
type Method struct {
	Code           string `json:"code"`
	NormalizedCode string `json:"normalizedCode"`
	File           string `json:"file"`
	Class          string `json:"class,omitempty"`
	Name           string `json:"name"`
	Line           int    `json:"line"`
	EndLine        int    `json:"endLine"`
	Score          int    `json:"score"`
}

// File records the state of one involved file at extraction time
type File struct {
	AbsolutePath     string   `json:"absolutePath"`
	MethodKeys       []string `json:"methodKeys"`
	OriginalFileHash string   `json:"originalFileHash"`
}

type Snapshot struct {
	Version   int                `json:"version"`
	Timestamp time.Time          `json:"timestamp"`
	Root      string             `json:"root"`
	Language  string             `json:"language"`
	Methods   map[string]*Method `json:"methods"`
	Files     map[string]*File   `json:"files"`
}

// Extractor supplies live method text and index metadata
type Extractor interface {
	ExtractMethod(key string) (*indexing.MethodSource, bool)
	Method(key string) (*types.MethodEntry, bool)
	Root() string
}

var errNoMethods = errors.New("no methods to snapshot")

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	punctuationGap = regexp.MustCompile(`\s*([{}();,])\s*`)
)

// Normalize collapses whitespace runs to a single space, removes spaces
// around { } ( ) ; , and trims the result. Two snippets that differ only in
// layout normalize to the same string.
func Normalize(code string) string {
	s := whitespaceRun.ReplaceAllString(code, " ")
	s = punctuationGap.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// Create captures keys from ex. Keys that no longer resolve are returned as
// missing; scores are optional.
func Create(ex Extractor, keys []string, scores map[string]int) (*Snapshot, []string, error) {
	snap := &Snapshot{
		Version:   FormatVersion,
		Timestamp: time.Now().UTC(),
		Root:      ex.Root(),
		Methods:   make(map[string]*Method),
		Files:     make(map[string]*File),
	}

	var missing []string
	languages := make(map[string]bool)
	for _, key := range keys {
		if _, dup := snap.Methods[key]; dup {
			continue
		}
		src, ok := ex.ExtractMethod(key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		entry, ok := ex.Method(key)
		if !ok {
			missing = append(missing, key)
			continue
		}

		f, seen := snap.Files[src.File]
		if !seen {
			hash, err := storage.HashFile(src.AbsPath)
			if err != nil {
				return nil, nil, mmerrors.NewFileError("hash", src.File, err)
			}
			f = &File{AbsolutePath: src.AbsPath, OriginalFileHash: hash}
			snap.Files[src.File] = f
			if lang, ok := parser.LanguageForPath(src.File); ok {
				languages[string(lang)] = true
			}
		}
		f.MethodKeys = append(f.MethodKeys, key)

		snap.Methods[key] = &Method{
			Code:           src.Code,
			NormalizedCode: Normalize(src.Code),
			File:           src.File,
			Class:          entry.Class,
			Name:           entry.Name,
			Line:           src.StartLine,
			EndLine:        src.EndLine,
			Score:          scores[key],
		}
	}

	if len(snap.Methods) == 0 {
		return nil, missing, errNoMethods
	}
	switch len(languages) {
	case 0:
	case 1:
		for l := range languages {
			snap.Language = l
		}
	default:
		snap.Language = LanguageMixed
	}
	return snap, missing, nil
}

// OrderedKeys returns method keys grouped by file and in source order
func (s *Snapshot) OrderedKeys() []string {
	keys := make([]string, 0, len(s.Methods))
	for k := range s.Methods {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.Methods[keys[i]], s.Methods[keys[j]]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return keys[i] < keys[j]
	})
	return keys
}

// ArtifactExtension picks the edit artifact's extension from the snapshot's
// files: their shared extension, or .txt when they differ
func (s *Snapshot) ArtifactExtension() string {
	ext := ""
	for path := range s.Files {
		e := strings.ToLower(filepath.Ext(path))
		if ext != "" && e != ext {
			return ".txt"
		}
		ext = e
	}
	if ext == "" {
		return ".txt"
	}
	return ext
}

// Save writes the snapshot document atomically
func (s *Snapshot) Save(path string) error {
	if err := storage.WriteJSON(path, s); err != nil {
		return mmerrors.NewFileError("write", path, err)
	}
	return nil
}

// Load reads a snapshot document
func Load(path string) (*Snapshot, error) {
	var s Snapshot
	found, err := storage.ReadJSON(path, &s)
	if err != nil {
		return nil, mmerrors.NewFileError("read", path, err)
	}
	if !found {
		return nil, mmerrors.NewFileError("read", path, os.ErrNotExist)
	}
	if s.Version != FormatVersion {
		return nil, fmt.Errorf("snapshot %s has format version %d, want %d", path, s.Version, FormatVersion)
	}
	if s.Methods == nil {
		s.Methods = make(map[string]*Method)
	}
	if s.Files == nil {
		s.Files = make(map[string]*File)
	}
	return &s, nil
}
