package search

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/methodmap/internal/annotations"
	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/types"
)

// Direction selects which relationships Expand follows
type Direction string

const (
	DirectionCallers Direction = "callers"
	DirectionCalls   Direction = "calls"
	DirectionBoth    Direction = "both"
)

// ParseDirection accepts a direction name in any case; empty means both
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionBoth:
		return DirectionBoth, nil
	case DirectionCallers:
		return DirectionCallers, nil
	case DirectionCalls:
		return DirectionCalls, nil
	}
	return "", fmt.Errorf("unknown expand direction %q (want callers, calls or both)", s)
}

type ExpandOptions struct {
	Depth     int // levels of expansion, at least 1
	Direction Direction
}

// Session operation names recorded in the history
const (
	OpSearch           = "search"
	OpExclude          = "exclude"
	OpRetry            = "retry"
	OpExpand           = "expand"
	OpLevel            = "level"
	OpLoadCode         = "load_code"
	OpLoadFile         = "load_file"
	OpCheckAnnotations = "check_annotations"
	OpPending          = "pending_annotations"
	OpApplyAnnotations = "apply_annotations"
)

// HistoryEntry records one session operation
type HistoryEntry struct {
	Op      string    `json:"op"`
	Query   string    `json:"query,omitempty"`
	Keys    []string  `json:"keys,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Results int       `json:"results"`
	At      time.Time `json:"at"`
}

// Session holds one query's live result set. It is never persisted.
type Session struct {
	engine *Engine

	mu        sync.Mutex
	query     string
	opts      Options
	results   []ScoredMethod
	excluded  map[string]bool
	expanded  map[string]bool
	codeCache map[string]string
	fileCache map[string]string
	history   []HistoryEntry
}

// NewSession runs query and wraps its results
func NewSession(engine *Engine, query string, opts Options) *Session {
	s := &Session{
		engine:    engine,
		query:     query,
		opts:      opts,
		excluded:  make(map[string]bool),
		expanded:  make(map[string]bool),
		codeCache: make(map[string]string),
		fileCache: make(map[string]string),
	}
	s.results = engine.FindRelevantMethods(query, opts)
	s.record(HistoryEntry{Op: OpSearch, Query: query})
	return s
}

// record appends to the history; callers hold mu or own s exclusively
func (s *Session) record(h HistoryEntry) {
	h.At = time.Now()
	h.Results = len(s.results)
	s.history = append(s.history, h)
}

// Query is the query the current results came from
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Exclude drops keys from the results and keeps them out of later retries
// and expansions. Returns how many live results were removed.
func (s *Session) Exclude(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		s.excluded[k] = true
	}
	kept := s.results[:0]
	removed := 0
	for _, r := range s.results {
		if s.excluded[r.Key] {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.results = kept
	s.record(HistoryEntry{Op: OpExclude, Keys: append([]string(nil), keys...), Detail: fmt.Sprintf("removed %d", removed)})
	return removed
}

// Retry re-runs the search, replacing the results. An empty query or nil
// opts keeps the previous value. Exclusions still apply.
func (s *Session) Retry(query string, opts *Options) []ScoredMethod {
	s.mu.Lock()
	defer s.mu.Unlock()

	if query != "" {
		s.query = query
	}
	if opts != nil {
		s.opts = *opts
	}
	run := s.opts
	run.exclude = s.excluded
	s.results = s.engine.FindRelevantMethods(s.query, run)
	s.record(HistoryEntry{Op: OpRetry, Query: s.query})
	return cloneResults(s.results)
}

// Expand pulls related methods into the results: for callers, every method of
// each class listed in the target's consumers; for calls, the creator methods
// of each class the target creates. Added entries score 0. Expanding a key a
// second time is a no-op. Returns the keys added.
func (s *Session) Expand(key string, opts ExpandOptions) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Depth < 1 {
		opts.Depth = 1
	}
	if opts.Direction == "" {
		opts.Direction = DirectionBoth
	}

	added := s.expand(key, opts)
	detail := fmt.Sprintf("%s depth=%d added=%d", opts.Direction, opts.Depth, len(added))
	s.record(HistoryEntry{Op: OpExpand, Keys: []string{key}, Detail: detail})
	debug.LogSearch("expand %s: %s", key, detail)
	return added
}

func (s *Session) expand(key string, opts ExpandOptions) []string {
	if s.expanded[key] {
		return nil
	}
	s.expanded[key] = true

	target, ok := s.engine.Method(key)
	if !ok {
		return nil
	}

	var candidates []*types.MethodEntry
	if opts.Direction == DirectionCallers || opts.Direction == DirectionBoth {
		for _, class := range target.Consumers {
			candidates = append(candidates, s.engine.idx.MethodsByClass(class)...)
		}
	}
	if opts.Direction == DirectionCalls || opts.Direction == DirectionBoth {
		for _, class := range target.Effects[types.EffectCreates] {
			for _, name := range s.engine.CreatorNames() {
				if m, ok := s.engine.idx.Method(types.MethodKey(class, name)); ok {
					candidates = append(candidates, m)
				}
			}
		}
	}

	var added []string
	for _, m := range candidates {
		if m.Key == key || s.excluded[m.Key] || s.has(m.Key) {
			continue
		}
		s.results = append(s.results, ScoredMethod{Key: m.Key, Score: 0, Entry: s.engine.merge(m), Expanded: true})
		added = append(added, m.Key)
	}

	if opts.Depth > 1 {
		next := ExpandOptions{Depth: opts.Depth - 1, Direction: opts.Direction}
		for _, k := range append([]string(nil), added...) {
			added = append(added, s.expand(k, next)...)
		}
	}
	return added
}

func (s *Session) has(key string) bool {
	for _, r := range s.results {
		if r.Key == key {
			return true
		}
	}
	return false
}

// LoadCode extracts code for keys, once per key per session. Keys that no
// longer resolve are left out.
func (s *Session) LoadCode(keys ...string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.loadCode(keys)
	s.record(HistoryEntry{Op: OpLoadCode, Keys: append([]string(nil), keys...), Detail: fmt.Sprintf("loaded %d", len(out))})
	return out
}

func (s *Session) loadCode(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if code, ok := s.codeCache[k]; ok {
			out[k] = code
			continue
		}
		code, ok := s.engine.idx.ExtractMethodCode(k)
		if !ok {
			continue
		}
		s.codeCache[k] = code
		out[k] = code
	}
	return out
}

// LoadFile reads a project file by its relative path, once per session
func (s *Session) LoadFile(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.loadFile(path)
	s.record(HistoryEntry{Op: OpLoadFile, Keys: []string{path}, Detail: fmt.Sprintf("found=%v", ok)})
	return content, ok
}

func (s *Session) loadFile(path string) (string, bool) {
	if content, ok := s.fileCache[path]; ok {
		return content, true
	}
	b, err := os.ReadFile(s.engine.idx.AbsPath(path))
	if err != nil {
		debug.LogSearch("load file %s: %v", path, err)
		return "", false
	}
	s.fileCache[path] = string(b)
	return string(b), true
}

// Results returns a copy of the current results
func (s *Session) Results() []ScoredMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneResults(s.results)
}

// Keys returns the current result keys in rank order
func (s *Session) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, len(s.results))
	for i, r := range s.results {
		keys[i] = r.Key
	}
	return keys
}

// Excluded returns the excluded keys, sorted
func (s *Session) Excluded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.excluded))
	for k := range s.excluded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// History returns a copy of the operation log
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

// AnnotationCheck is the annotation status of one result
type AnnotationCheck struct {
	Key    string             `json:"key"`
	Status annotations.Status `json:"status"`
}

// CheckAnnotations classifies every current result
func (s *Session) CheckAnnotations() []AnnotationCheck {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.checkAnnotations()
	s.record(HistoryEntry{Op: OpCheckAnnotations, Detail: summarizeStatuses(out)})
	return out
}

func (s *Session) checkAnnotations() []AnnotationCheck {
	out := make([]AnnotationCheck, 0, len(s.results))
	for _, r := range s.results {
		status := annotations.StatusMissing
		if m, ok := s.engine.idx.Method(r.Key); ok {
			if s.engine.cache != nil {
				status = s.engine.cache.Status(m)
			} else if m.RoleSource == types.RoleSourceDoc && m.Description != "" {
				status = annotations.StatusComplete
			}
		}
		out = append(out, AnnotationCheck{Key: r.Key, Status: status})
	}
	return out
}

func summarizeStatuses(checks []AnnotationCheck) string {
	counts := make(map[annotations.Status]int)
	for _, c := range checks {
		counts[c.Status]++
	}
	return fmt.Sprintf("complete=%d partial=%d outdated=%d missing=%d",
		counts[annotations.StatusComplete], counts[annotations.StatusPartial],
		counts[annotations.StatusOutdated], counts[annotations.StatusMissing])
}

// PendingAnnotation is a result that needs (re)annotation, with what an
// external annotator needs to produce a record for it
type PendingAnnotation struct {
	Key       string             `json:"key"`
	Status    annotations.Status `json:"status"`
	BodyHash  string             `json:"bodyHash"`
	File      string             `json:"file"`
	Signature string             `json:"signature"`
	Code      string             `json:"code,omitempty"`
}

// MethodsNeedingAnnotation lists results that are not complete
func (s *Session) MethodsNeedingAnnotation() []PendingAnnotation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PendingAnnotation
	for _, c := range s.checkAnnotations() {
		if c.Status == annotations.StatusComplete {
			continue
		}
		m, ok := s.engine.idx.Method(c.Key)
		if !ok {
			continue
		}
		code := s.loadCode([]string{c.Key})[c.Key]
		out = append(out, PendingAnnotation{
			Key:       c.Key,
			Status:    c.Status,
			BodyHash:  m.BodyHash,
			File:      m.File,
			Signature: m.Signature,
			Code:      code,
		})
	}
	s.record(HistoryEntry{Op: OpPending, Detail: fmt.Sprintf("pending %d", len(out))})
	return out
}

// AnnotationInput is an externally produced annotation for one method. It
// applies only to the body it was generated from.
type AnnotationInput struct {
	Key         string              `json:"key"`
	BodyHash    string              `json:"bodyHash"`
	Role        string              `json:"role,omitempty"`
	Description string              `json:"description,omitempty"`
	Effects     types.Effects       `json:"effects,omitempty"`
	Consumers   []string            `json:"consumers,omitempty"`
	Context     types.MethodContext `json:"context"`
	Source      string              `json:"source,omitempty"`
}

// ApplyResult reports which inputs were stored
type ApplyResult struct {
	Applied  []string          `json:"applied"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

// ApplyAnnotations validates each input against the live index and stores
// the accepted ones in the annotation cache, which is then saved. An input
// whose body hash does not match the indexed method is rejected as stale.
func (s *Session) ApplyAnnotations(inputs []AnnotationInput) (*ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache := s.engine.cache
	if cache == nil {
		return nil, fmt.Errorf("no annotation cache configured")
	}

	res := &ApplyResult{Rejected: make(map[string]string)}
	for _, in := range inputs {
		m, ok := s.engine.idx.Method(in.Key)
		switch {
		case !ok:
			res.Rejected[in.Key] = "unknown method"
			continue
		case in.BodyHash == "":
			res.Rejected[in.Key] = "missing body hash"
			continue
		case in.BodyHash != m.BodyHash:
			res.Rejected[in.Key] = "stale body hash"
			continue
		}

		rec := types.AnnotationRecord{
			Role:        types.Role(in.Role),
			Description: strings.TrimSpace(in.Description),
			Effects:     in.Effects,
			Consumers:   in.Consumers,
			Context:     in.Context,
			Source:      types.ParseAnnotationSource(in.Source),
		}
		if err := cache.Set(in.Key, rec, in.BodyHash); err != nil {
			res.Rejected[in.Key] = err.Error()
			continue
		}
		res.Applied = append(res.Applied, in.Key)
	}

	if len(res.Applied) > 0 {
		if err := cache.Save(); err != nil {
			return res, err
		}
		s.refresh(res.Applied)
	}
	s.record(HistoryEntry{Op: OpApplyAnnotations, Keys: res.Applied, Detail: fmt.Sprintf("applied %d rejected %d", len(res.Applied), len(res.Rejected))})
	return res, nil
}

// refresh re-merges the entries for keys after their annotations changed
func (s *Session) refresh(keys []string) {
	changed := make(map[string]bool, len(keys))
	for _, k := range keys {
		changed[k] = true
	}
	for i, r := range s.results {
		if !changed[r.Key] {
			continue
		}
		if m, ok := s.engine.Method(r.Key); ok {
			s.results[i].Entry = m
		}
	}
}

func cloneResults(in []ScoredMethod) []ScoredMethod {
	return append([]ScoredMethod(nil), in...)
}
