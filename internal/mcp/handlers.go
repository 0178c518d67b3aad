package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/indexing"
	"github.com/standardbeagle/methodmap/internal/reinject"
	"github.com/standardbeagle/methodmap/internal/search"
	"github.com/standardbeagle/methodmap/internal/snapshot"
)

// IndexResponse reports one indexing pass and the resulting index
type IndexResponse struct {
	Stats   *indexing.IndexStats `json:"stats"`
	Summary indexing.Summary     `json:"summary"`
}

// SearchResponse opens a session
type SearchResponse struct {
	SessionID string            `json:"session_id"`
	Results   *search.LevelView `json:"results"`
}

// SessionResponse is the result of one session action
type SessionResponse struct {
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Result    interface{} `json:"result"`
}

func (s *Server) handleIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p IndexParams
	warnings, err := decodeArgs(req.Params.Arguments, &p)
	if err != nil {
		return createErrorResponse("index", fmt.Errorf("invalid parameters: %w", err))
	}

	stats, err := s.ix.IndexAll(ctx, p.Force)
	if err != nil {
		return createErrorResponse("index", err)
	}
	debug.LogMCP("index: %s", stats)
	return createJSONResponse(IndexResponse{Stats: stats, Summary: s.ix.Stats()}, warnings)
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p SearchParams
	warnings, err := decodeArgs(req.Params.Arguments, &p)
	if err != nil {
		return createErrorResponse("search", fmt.Errorf("invalid parameters: %w", err))
	}
	if strings.TrimSpace(p.Query) == "" {
		return createErrorResponse("search", errors.New("query is required"))
	}

	opts, err := s.searchOptions(p)
	if err != nil {
		return createErrorResponse("search", err)
	}
	sess := search.NewSession(s.engine, p.Query, opts)

	view, err := sess.GetAtLevel(levelOr(p.Level, search.DefaultDetailLevel))
	if err != nil {
		return createErrorResponse("search", err)
	}
	id := s.openSession(sess)
	debug.LogMCP("search %q opened session %s with %d results", p.Query, id, len(view.Methods))
	return createJSONResponse(SearchResponse{SessionID: id, Results: view}, warnings)
}

func (s *Server) searchOptions(p SearchParams) (search.Options, error) {
	opts := s.engine.DefaultOptions()
	if p.MaxMethods > 0 {
		opts.MaxMethods = p.MaxMethods
	}
	if p.MinScore > 0 {
		opts.MinScore = p.MinScore
	}
	if p.IncludePrivate {
		opts.IncludePrivate = true
	}
	include, err := parseRoles(p.IncludeRoles)
	if err != nil {
		return opts, err
	}
	if include != nil {
		opts.IncludeRoles = include
	}
	exclude, err := parseRoles(p.ExcludeRoles)
	if err != nil {
		return opts, err
	}
	if exclude != nil {
		opts.ExcludeRoles = exclude
	}
	return opts, nil
}

func (s *Server) handleSession(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p SessionParams
	warnings, err := decodeArgs(req.Params.Arguments, &p)
	if err != nil {
		return createErrorResponse("session", fmt.Errorf("invalid parameters: %w", err))
	}
	sess, err := s.session(p.SessionID)
	if err != nil {
		return createErrorResponse("session", err)
	}

	var result interface{}
	switch strings.ToLower(p.Action) {
	case "exclude":
		if len(p.Keys) == 0 {
			return createErrorResponse("session", errors.New("exclude needs keys"))
		}
		removed := sess.Exclude(p.Keys...)
		result = map[string]interface{}{"removed": removed, "keys": sess.Keys()}

	case "retry":
		q := p.Query
		if q == "" {
			q = sess.Query()
		}
		sess.Retry(q, nil)
		result, err = sess.GetAtLevel(levelOr(p.Level, search.DefaultDetailLevel))

	case "expand":
		if p.Key == "" {
			return createErrorResponse("session", errors.New("expand needs key"))
		}
		dir, derr := search.ParseDirection(p.Direction)
		if derr != nil {
			return createErrorResponse("session", derr)
		}
		added := sess.Expand(p.Key, search.ExpandOptions{Depth: p.Depth, Direction: dir})
		result = map[string]interface{}{"added": added, "keys": sess.Keys()}

	case "level":
		result, err = sess.GetAtLevel(levelOr(p.Level, search.DefaultDetailLevel))

	case "load_code":
		keys := p.Keys
		if len(keys) == 0 {
			keys = sess.Keys()
		}
		result = sess.LoadCode(keys...)

	case "load_file":
		content, ok := sess.LoadFile(p.Path)
		if !ok {
			return createErrorResponse("session", fmt.Errorf("cannot read %q", p.Path))
		}
		result = map[string]string{"path": p.Path, "content": content}

	case "annotations":
		result = sess.CheckAnnotations()

	case "pending":
		result = sess.MethodsNeedingAnnotation()

	case "history":
		result = sess.History()

	case "close":
		result = map[string]bool{"closed": s.closeSession(p.SessionID)}

	default:
		return createErrorResponse("session", fmt.Errorf("unknown action %q", p.Action))
	}
	if err != nil {
		return createErrorResponse("session", err)
	}
	return createJSONResponse(SessionResponse{SessionID: p.SessionID, Action: p.Action, Result: result}, warnings)
}

func (s *Server) handleApplyAnnotations(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ApplyAnnotationsParams
	warnings, err := decodeArgs(req.Params.Arguments, &p)
	if err != nil {
		return createErrorResponse("apply_annotations", fmt.Errorf("invalid parameters: %w", err))
	}
	sess, err := s.session(p.SessionID)
	if err != nil {
		return createErrorResponse("apply_annotations", err)
	}
	res, err := sess.ApplyAnnotations(p.Annotations)
	if err != nil {
		return createErrorResponse("apply_annotations", err)
	}
	return createJSONResponse(res, warnings)
}

func (s *Server) handleExtract(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ExtractParams
	warnings, err := decodeArgs(req.Params.Arguments, &p)
	if err != nil {
		return createErrorResponse("extract", fmt.Errorf("invalid parameters: %w", err))
	}

	keys := p.Keys
	scores := make(map[string]int)
	if p.SessionID != "" {
		sess, err := s.session(p.SessionID)
		if err != nil {
			return createErrorResponse("extract", err)
		}
		for _, r := range sess.Results() {
			scores[r.Key] = r.Score
			if len(p.Keys) == 0 {
				keys = append(keys, r.Key)
			}
		}
	}
	if len(keys) == 0 {
		return createErrorResponse("extract", errors.New("nothing to extract: pass keys or a session_id with results"))
	}

	res, err := snapshot.Extract(s.ix, s.cfg.SnapshotDir(), keys, scores)
	if err != nil {
		return createErrorResponse("extract", err)
	}
	return createJSONResponse(res, warnings)
}

func (s *Server) handleReinject(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ReinjectParams
	warnings, err := decodeArgs(req.Params.Arguments, &p)
	if err != nil {
		return createErrorResponse("reinject", fmt.Errorf("invalid parameters: %w", err))
	}
	if p.Snapshot == "" || p.Artifact == "" {
		return createErrorResponse("reinject", errors.New("snapshot and artifact are required"))
	}

	res, err := s.reinjector.Reinject(p.Snapshot, p.Artifact, reinject.Options{
		Force:    p.Force,
		DryRun:   p.DryRun,
		NoBackup: p.NoBackup,
	})
	if err != nil {
		return createErrorResponse("reinject", err)
	}

	if len(res.Files) > 0 && !res.DryRun {
		for _, rel := range res.Files {
			if _, err := s.ix.IndexFile(ctx, rel); err != nil {
				debug.LogMCP("re-index %s after reinject: %v", rel, err)
			}
		}
		if err := s.ix.Save(); err != nil {
			debug.LogMCP("save index after reinject: %v", err)
		}
	}
	return createJSONResponse(res, warnings)
}

func (s *Server) handleMethodCode(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p MethodCodeParams
	warnings, err := decodeArgs(req.Params.Arguments, &p)
	if err != nil {
		return createErrorResponse("method_code", fmt.Errorf("invalid parameters: %w", err))
	}
	src, ok := s.ix.ExtractMethod(p.Key)
	if !ok {
		return createErrorResponse("method_code", fmt.Errorf("method %q not found", p.Key))
	}
	return createJSONResponse(map[string]interface{}{
		"key":       src.Key,
		"file":      src.File,
		"startLine": src.StartLine,
		"endLine":   src.EndLine,
		"bodyHash":  src.BodyHash,
		"code":      src.Code,
	}, warnings)
}

func levelOr(level *int, def int) int {
	if level == nil {
		return def
	}
	return *level
}
