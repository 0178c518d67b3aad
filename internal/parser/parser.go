// Package parser turns one source file into class and method boundaries using
// tree-sitter, and reads the documentation block attached to each declaration.
package parser

import (
	"errors"
	"fmt"

	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/types"
)

var errUnsupported = errors.New("unsupported file type")

// ClassInfo is one declared class
type ClassInfo struct {
	Name         string
	Superclass   string
	StartByte    int
	EndByte      int
	StartLine    int
	EndLine      int
	Members      []string // method keys in source order
	DocComment   string
	DocStartByte int
}

// FunctionInfo is one method or standalone function
type FunctionInfo struct {
	Key           string
	Name          string
	Class         string
	IsStatic      bool
	IsPrivate     bool
	IsAsync       bool
	Params        string // raw parameter text including parentheses
	StartByte     int    // declaration start, excluding the doc block
	EndByte       int
	BodyStartByte int
	BodyEndByte   int
	StartLine     int
	EndLine       int
	DocComment    string
	DocStartByte  int // equals StartByte when undocumented
	DocStartLine  int

	classIdx int // index into FileStructure.Classes, -1 for standalone functions
}

// Signature is the name followed by the raw parameter text
func (f *FunctionInfo) Signature() string {
	return f.Name + f.Params
}

// HasDoc reports whether a documentation block is attached
func (f *FunctionInfo) HasDoc() bool {
	return f.DocComment != ""
}

// Declaration returns the declaration text without its doc block
func (f *FunctionInfo) Declaration(content []byte) string {
	return string(content[f.StartByte:f.EndByte])
}

// Code returns the declaration text including the attached doc block
func (f *FunctionInfo) Code(content []byte) string {
	return string(content[f.DocStartByte:f.EndByte])
}

// FileStructure is the parse result for one file
type FileStructure struct {
	Path      string
	Language  Language
	Classes   []ClassInfo
	Functions []FunctionInfo
	HasErrors bool // tree-sitter recovered from at least one syntax error
}

// Function looks up a method or function by key
func (fs *FileStructure) Function(key string) (*FunctionInfo, bool) {
	for i := range fs.Functions {
		if fs.Functions[i].Key == key {
			return &fs.Functions[i], true
		}
	}
	return nil, false
}

// Parser is safe for concurrent use; every Parse call gets its own tree-sitter parser
type Parser struct {
	docLookback int
}

// New creates a parser that searches docLookback bytes before a declaration
// for its documentation block
func New(docLookback int) *Parser {
	if docLookback <= 0 {
		docLookback = types.DefaultDocLookback
	}
	return &Parser{docLookback: docLookback}
}

// Supports reports whether path has a grammar
func (p *Parser) Supports(path string) bool {
	_, ok := LanguageForPath(path)
	return ok
}

// Parse extracts classes and functions from content. Files with syntax errors
// are still returned with HasErrors set; only unsupported or unparseable input
// yields a *errors.ParseError.
func (p *Parser) Parse(path string, content []byte) (*FileStructure, error) {
	lang, ok := LanguageForPath(path)
	if !ok {
		return nil, mmerrors.NewParseError(path, 0, errUnsupported)
	}

	tsParser, profile, err := newTreeSitterParser(lang)
	if err != nil {
		return nil, mmerrors.NewParseError(path, 0, err)
	}
	defer tsParser.Close()

	tree := tsParser.Parse(content, nil)
	if tree == nil {
		return nil, mmerrors.NewParseError(path, 0, errors.New("parser returned no tree"))
	}
	defer tree.Close()

	root := tree.RootNode()
	fs := &FileStructure{
		Path:      path,
		Language:  lang,
		HasErrors: root.HasError(),
	}

	w := &walker{
		content:  content,
		profile:  profile,
		lookback: p.docLookback,
		out:      fs,
	}
	w.visit(root, -1)
	w.assignKeys()

	return fs, nil
}

// HasSyntaxErrors parses content and reports whether the tree contains errors
func (p *Parser) HasSyntaxErrors(path string, content []byte) (bool, error) {
	lang, ok := LanguageForPath(path)
	if !ok {
		return false, mmerrors.NewParseError(path, 0, errUnsupported)
	}

	tsParser, _, err := newTreeSitterParser(lang)
	if err != nil {
		return false, mmerrors.NewParseError(path, 0, err)
	}
	defer tsParser.Close()

	tree := tsParser.Parse(content, nil)
	if tree == nil {
		return false, mmerrors.NewParseError(path, 0, errors.New("parser returned no tree"))
	}
	defer tree.Close()

	return tree.RootNode().HasError(), nil
}

// assignKeys sets Class.name keys, suffixing duplicates in source order
func (w *walker) assignKeys() {
	seen := make(map[string]int)
	for i := range w.out.Functions {
		fn := &w.out.Functions[i]
		base := types.MethodKey(fn.Class, fn.Name)
		seen[base]++
		if n := seen[base]; n > 1 {
			fn.Key = fmt.Sprintf("%s#%d", base, n)
		} else {
			fn.Key = base
		}
	}

	for i := range w.out.Functions {
		fn := &w.out.Functions[i]
		if fn.classIdx >= 0 {
			w.out.Classes[fn.classIdx].Members = append(w.out.Classes[fn.classIdx].Members, fn.Key)
		}
	}
}
