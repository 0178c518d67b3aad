package errors

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrorType classifies failures surfaced by the indexer, search and reinjection layers
type ErrorType string

const (
	ErrorTypeIndexing  ErrorType = "indexing"
	ErrorTypeParse     ErrorType = "parse"
	ErrorTypeIntegrity ErrorType = "integrity"
	ErrorTypeReconcile ErrorType = "reconcile"

	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypeFileIO       ErrorType = "file_io"

	ErrorTypeConfig ErrorType = "config"
)

// IndexingError represents a failure of a whole indexing step (listing, persisting)
type IndexingError struct {
	Type        ErrorType
	FilePath    string
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewIndexingError creates a new indexing error with context
func NewIndexingError(op string, err error) *IndexingError {
	return &IndexingError{
		Type:       ErrorTypeIndexing,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithFile adds file information to the error
func (e *IndexingError) WithFile(path string) *IndexingError {
	e.FilePath = path
	return e
}

// WithRecoverable marks the error as recoverable
func (e *IndexingError) WithRecoverable(recoverable bool) *IndexingError {
	e.Recoverable = recoverable
	return e
}

func (e *IndexingError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

func (e *IndexingError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable reports whether a re-run may succeed
func (e *IndexingError) IsRecoverable() bool {
	return e.Recoverable
}

// ParseError is recorded per file; it never aborts a pass
type ParseError struct {
	Type       ErrorType
	FilePath   string
	Line       int
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a new parse error
func NewParseError(path string, line int, err error) *ParseError {
	return &ParseError{
		Type:       ErrorTypeParse,
		FilePath:   path,
		Line:       line,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at %s:%d: %v", e.FilePath, e.Line, e.Underlying)
	}
	return fmt.Sprintf("parse error in %s: %v", e.FilePath, e.Underlying)
}

func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// FileMismatch describes one file whose content changed after a snapshot was taken
type FileMismatch struct {
	Path         string
	ExpectedHash string
	ActualHash   string
	Missing      bool
}

// IntegrityError is returned when files changed since the snapshot; the force
// option overrides it
type IntegrityError struct {
	Type      ErrorType
	Files     []FileMismatch
	Timestamp time.Time
}

// NewIntegrityError creates a new integrity error
func NewIntegrityError(files []FileMismatch) *IntegrityError {
	return &IntegrityError{
		Type:      ErrorTypeIntegrity,
		Files:     files,
		Timestamp: time.Now(),
	}
}

func (e *IntegrityError) Error() string {
	paths := make([]string, 0, len(e.Files))
	for _, f := range e.Files {
		paths = append(paths, f.Path)
	}
	return fmt.Sprintf("%d file(s) changed since snapshot (%s); re-extract or use force to override",
		len(e.Files), strings.Join(paths, ", "))
}

// ReconcileError marks a single method that could not be located for replacement
type ReconcileError struct {
	Type       ErrorType
	Key        string
	FilePath   string
	Similarity float64
	BestLine   int
	Reason     string
	Timestamp  time.Time
}

// NewReconcileError creates a new reconciliation error
func NewReconcileError(key, path, reason string) *ReconcileError {
	return &ReconcileError{
		Type:      ErrorTypeReconcile,
		Key:       key,
		FilePath:  path,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// WithSimilarity attaches the best-effort diagnostic match
func (e *ReconcileError) WithSimilarity(similarity float64, line int) *ReconcileError {
	e.Similarity = similarity
	e.BestLine = line
	return e
}

func (e *ReconcileError) Error() string {
	if e.BestLine > 0 {
		return fmt.Sprintf("cannot reinject %s into %s: %s (best candidate line %d, similarity %.2f)",
			e.Key, e.FilePath, e.Reason, e.BestLine, e.Similarity)
	}
	return fmt.Sprintf("cannot reinject %s into %s: %s", e.Key, e.FilePath, e.Reason)
}

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error, classifying the underlying cause
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeFileIO
	switch {
	case os.IsNotExist(err):
		errorType = ErrorTypeFileNotFound
	case os.IsPermission(err):
		errorType = ErrorTypePermission
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, dropping nils
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

func (e *MultiError) Unwrap() []error {
	return e.Errors
}
