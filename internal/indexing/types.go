package indexing

import (
	"time"
)

// IndexStats summarizes one IndexAll pass
type IndexStats struct {
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Errors   int           `json:"errors"`
	Deleted  int           `json:"deleted"`
	Methods  int           `json:"methods"`
	Classes  int           `json:"classes"`
	Duration time.Duration `json:"duration"`
	// Failures lists files that could not be read or parsed, with the reason
	Failures []FileFailure `json:"failures,omitempty"`
}

// FileFailure is a per-file indexing error; it never aborts the pass
type FileFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Summary describes the current index contents
type Summary struct {
	Root      string    `json:"root"`
	Files     int       `json:"files"`
	Methods   int       `json:"methods"`
	Classes   int       `json:"classes"`
	Generated time.Time `json:"generated"`
	// Languages counts indexed files per language
	Languages map[string]int `json:"languages"`
}

// MethodSource is a method's text pulled from the live file
type MethodSource struct {
	Key         string
	File        string // relative path
	AbsPath     string
	Code        string // declaration including the attached doc block
	Declaration string // declaration without the doc block
	StartLine   int    // first line of Code
	EndLine     int
	BodyHash    string
}
