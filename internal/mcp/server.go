// Package mcp exposes indexing, search sessions, extraction and reinjection
// as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/methodmap/internal/annotations"
	"github.com/standardbeagle/methodmap/internal/config"
	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/indexing"
	"github.com/standardbeagle/methodmap/internal/reinject"
	"github.com/standardbeagle/methodmap/internal/search"
	"github.com/standardbeagle/methodmap/internal/version"
)

// IndexParams for the index tool
type IndexParams struct {
	Force bool `json:"force,omitempty"`
}

// SearchParams open a new search session
type SearchParams struct {
	Query          string   `json:"query"`
	MaxMethods     int      `json:"max_methods,omitempty"`
	MinScore       int      `json:"min_score,omitempty"`
	IncludePrivate bool     `json:"include_private,omitempty"`
	IncludeRoles   []string `json:"include_roles,omitempty"`
	ExcludeRoles   []string `json:"exclude_roles,omitempty"`
	Level          *int     `json:"level,omitempty"`
}

// SessionParams drive one operation on an open session
type SessionParams struct {
	SessionID string   `json:"session_id"`
	Action    string   `json:"action"`
	Keys      []string `json:"keys,omitempty"`
	Key       string   `json:"key,omitempty"`
	Query     string   `json:"query,omitempty"`
	Depth     int      `json:"depth,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Level     *int     `json:"level,omitempty"`
	Path      string   `json:"path,omitempty"`
}

// ApplyAnnotationsParams carry externally produced annotations
type ApplyAnnotationsParams struct {
	SessionID   string                   `json:"session_id"`
	Annotations []search.AnnotationInput `json:"annotations"`
}

// ExtractParams select methods by key or by a session's current results
type ExtractParams struct {
	Keys      []string `json:"keys,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// ReinjectParams name a snapshot and its edited artifact
type ReinjectParams struct {
	Snapshot string `json:"snapshot"`
	Artifact string `json:"artifact"`
	Force    bool   `json:"force,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
	NoBackup bool   `json:"no_backup,omitempty"`
}

// MethodCodeParams look up one method
type MethodCodeParams struct {
	Key string `json:"key"`
}

// Server owns the open search sessions. Index mutations are serialized by
// the indexer itself.
type Server struct {
	cfg        *config.Config
	ix         *indexing.Indexer
	cache      *annotations.Cache
	engine     *search.Engine
	reinjector *reinject.Reinjector
	server     *mcp.Server

	mu       sync.Mutex
	sessions map[string]*search.Session
}

// NewServer wires the tools over an indexer and annotation cache that the
// caller has already loaded
func NewServer(ix *indexing.Indexer, cache *annotations.Cache, cfg *config.Config) (*Server, error) {
	if ix == nil || cfg == nil {
		return nil, fmt.Errorf("mcp server needs an indexer and a config")
	}
	if cache == nil {
		cache = annotations.NewCache()
	}

	s := &Server{
		cfg:        cfg,
		ix:         ix,
		cache:      cache,
		engine:     search.NewEngine(ix, cache, cfg.Search, cfg.Expand),
		reinjector: reinject.New(cfg.Reinject, ix.Parser()),
		sessions:   make(map[string]*search.Session),
	}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "methodmap",
		Version: version.Version,
	}, nil)
	s.registerTools()

	debug.LogMCP("server ready for %s (%d methods indexed)", cfg.Project.Root, len(ix.Methods()))
	return s, nil
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "index",
		Description: "Scan the project and update the method index. Unchanged files are skipped unless force is set.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"force": {Type: "boolean", Description: "Re-parse every file"},
			},
		},
	}, s.handleIndex)

	s.server.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Rank methods relevant to a natural-language task and open a session for refining the results. Returns a session_id.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":           {Type: "string", Description: "Task description; Class.method references score highest"},
				"max_methods":     {Type: "integer", Description: "Maximum results (default from config)"},
				"min_score":       {Type: "integer", Description: "Minimum score to keep a method"},
				"include_private": {Type: "boolean", Description: "Include private methods"},
				"include_roles":   {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Only these roles"},
				"exclude_roles":   {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Drop these roles; [] disables the default exclusion"},
				"level":           {Type: "integer", Description: "Detail level 0-4: keys, role+description, signatures, code, whole files"},
			},
			Required: []string{"query"},
		},
	}, s.handleSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "session",
		Description: "Refine an open search session: exclude, retry, expand, level, load_code, load_file, annotations, pending, history or close.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"session_id": {Type: "string", Description: "Handle returned by search"},
				"action": {
					Type: "string",
					Enum: []any{"exclude", "retry", "expand", "level", "load_code", "load_file", "annotations", "pending", "history", "close"},
				},
				"keys":      {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Method keys for exclude and load_code"},
				"key":       {Type: "string", Description: "Method key for expand"},
				"query":     {Type: "string", Description: "New query for retry; empty repeats the current one"},
				"depth":     {Type: "integer", Description: "Expansion depth (default 1)"},
				"direction": {Type: "string", Enum: []any{"callers", "calls", "both"}},
				"level":     {Type: "integer", Description: "Detail level for level and retry"},
				"path":      {Type: "string", Description: "Project-relative file for load_file"},
			},
			Required: []string{"session_id", "action"},
		},
	}, s.handleSession)

	s.server.AddTool(&mcp.Tool{
		Name:        "apply_annotations",
		Description: "Store annotations for methods listed by session action=pending. Each must carry the bodyHash it was written for.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"session_id": {Type: "string"},
				"annotations": {
					Type: "array",
					Items: &jsonschema.Schema{
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"key":         {Type: "string"},
							"bodyHash":    {Type: "string"},
							"role":        {Type: "string"},
							"description": {Type: "string"},
							"effects":     {Type: "object", Description: "Effect kind to list of targets"},
							"consumers":   {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
							"context":     {Type: "object"},
							"source":      {Type: "string", Enum: []any{"external", "manual", "heuristic"}},
						},
						Required: []string{"key", "bodyHash"},
					},
				},
			},
			Required: []string{"session_id", "annotations"},
		},
	}, s.handleApplyAnnotations)

	s.server.AddTool(&mcp.Tool{
		Name:        "extract",
		Description: "Snapshot methods verbatim and write an edit artifact. Edit code between the markers, then call reinject.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"keys":       {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"session_id": {Type: "string", Description: "Extract the session's current results instead of keys"},
			},
		},
	}, s.handleExtract)

	s.server.AddTool(&mcp.Tool{
		Name:        "reinject",
		Description: "Write edited methods from an artifact back into their files. Refuses files changed since the snapshot unless force is set.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"snapshot":  {Type: "string"},
				"artifact":  {Type: "string"},
				"force":     {Type: "boolean"},
				"dry_run":   {Type: "boolean"},
				"no_backup": {Type: "boolean"},
			},
			Required: []string{"snapshot", "artifact"},
		},
	}, s.handleReinject)

	s.server.AddTool(&mcp.Tool{
		Name:        "method_code",
		Description: "Return the current source of one method, including its doc block.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"key": {Type: "string", Description: "Class.method or bare function name"},
			},
			Required: []string{"key"},
		},
	}, s.handleMethodCode)
}

// Start serves the tools over stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	debug.LogMCP("starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// openSession stores a session under a fresh handle
func (s *Server) openSession(sess *search.Session) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return id
}

func (s *Server) session(id string) (*search.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q; run search first", id)
	}
	return sess, nil
}

func (s *Server) closeSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// SessionCount reports how many sessions are open
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
