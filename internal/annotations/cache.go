// Package annotations stores metadata generated outside the source (by the
// heuristic annotator or an external assistant) and merges it with the
// metadata the indexer read from doc comments.
//
// Every record is pinned to the body hash it was produced for. A record whose
// hash no longer matches the indexed method is reported as outdated and is
// never merged; regenerating it is an explicit step.
package annotations

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/storage"
	"github.com/standardbeagle/methodmap/internal/types"
	"github.com/standardbeagle/methodmap/internal/version"
)

// FormatVersion of the persisted cache document
const FormatVersion = version.AnnotationFormat

// Status classifies how much metadata a method has
type Status string

const (
	StatusComplete Status = "complete"
	StatusOutdated Status = "outdated"
	StatusPartial  Status = "partial"
	StatusMissing  Status = "missing"
)

var (
	errNoBodyHash = errors.New("annotation requires the body hash it applies to")
	errEmptyKey   = errors.New("annotation requires a method key")
)

// Document is the persisted form of the cache
type Document struct {
	Version     int                                `json:"version"`
	Generated   time.Time                          `json:"generated"`
	Annotations map[string]*types.AnnotationRecord `json:"annotations"`
}

// Cache is the annotation store. Safe for concurrent use.
type Cache struct {
	path    string
	mu      sync.RWMutex
	records map[string]*types.AnnotationRecord
	now     func() time.Time
}

// NewCache returns an empty cache that is never persisted
func NewCache() *Cache {
	return &Cache{
		records: make(map[string]*types.AnnotationRecord),
		now:     time.Now,
	}
}

// Open loads the cache document at path. A missing file or a document written
// by another format version yields an empty cache bound to path.
func Open(path string) (*Cache, error) {
	c := NewCache()
	c.path = path

	var doc Document
	found, err := storage.ReadJSON(path, &doc)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	if !found {
		return c, nil
	}
	if doc.Version != FormatVersion {
		debug.LogAnnotate("annotation cache version %d != %d, starting empty", doc.Version, FormatVersion)
		return c, nil
	}
	for key, rec := range doc.Annotations {
		if rec != nil && key != "" {
			c.records[key] = rec
		}
	}
	debug.LogAnnotate("loaded %d annotations from %s", len(c.records), path)
	return c, nil
}

// Path is the backing file, empty for an in-memory cache
func (c *Cache) Path() string {
	return c.path
}

// Save writes the cache atomically. In-memory caches are not persisted.
func (c *Cache) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	doc := Document{
		Version:     FormatVersion,
		Generated:   c.now().UTC(),
		Annotations: make(map[string]*types.AnnotationRecord, len(c.records)),
	}
	for k, v := range c.records {
		doc.Annotations[k] = v
	}
	c.mu.RUnlock()

	if err := storage.WriteJSON(c.path, doc); err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	return nil
}

// Get returns a copy of the record for key
func (c *Cache) Get(key string) (*types.AnnotationRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[key]
	if !ok {
		return nil, false
	}
	return cloneRecord(rec), true
}

// Set stores rec for key, pinned to bodyHash. The role, when present, must be
// a known role; the source defaults to external.
func (c *Cache) Set(key string, rec types.AnnotationRecord, bodyHash string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errEmptyKey
	}
	if bodyHash == "" {
		return fmt.Errorf("%s: %w", key, errNoBodyHash)
	}
	if rec.Role != "" {
		role, ok := types.ParseRole(string(rec.Role))
		if !ok {
			return fmt.Errorf("%s: unknown role %q", key, rec.Role)
		}
		rec.Role = role
	}
	if rec.Source == "" {
		rec.Source = types.SourceExternal
	}
	if rec.AnnotatedAt.IsZero() {
		rec.AnnotatedAt = c.now().UTC()
	}
	rec.AnnotatedBodyHash = bodyHash

	stored := cloneRecord(&rec)
	normalized := types.Effects{}
	for kind, targets := range stored.Effects {
		normalized.Add(kind, targets...)
	}
	if len(normalized) == 0 {
		normalized = nil
	}
	stored.Effects = normalized

	c.mu.Lock()
	c.records[key] = stored
	c.mu.Unlock()

	debug.LogAnnotate("set %s (%s, hash %s)", key, rec.Source, bodyHash)
	return nil
}

// IsUpToDate reports whether a record exists for key and matches hash
func (c *Cache) IsUpToDate(key, hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[key]
	return ok && hash != "" && rec.AnnotatedBodyHash == hash
}

// Remove deletes the record for key
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[key]; !ok {
		return false
	}
	delete(c.records, key)
	return true
}

// Keys returns the annotated method keys in lexical order
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.records))
	for k := range c.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of stored records
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// MergeWithMethod returns a copy of entry with empty fields filled from the
// record for key. Fields read from source are never overwritten, and nothing
// is merged unless the record was produced for entry's current body hash.
// The role counts as read from source only when it came from a doc tag.
func (c *Cache) MergeWithMethod(entry *types.MethodEntry, key string) *types.MethodEntry {
	if entry == nil {
		return nil
	}
	out := entry.Clone()

	c.mu.RLock()
	rec, ok := c.records[key]
	c.mu.RUnlock()
	if !ok || rec.AnnotatedBodyHash != entry.BodyHash {
		return out
	}

	if out.RoleSource != types.RoleSourceDoc && rec.Role != "" {
		out.Role = rec.Role
		out.RoleSource = types.RoleSourceAnnotation
	}
	if out.Description == "" {
		out.Description = rec.Description
	}
	if len(out.Effects) == 0 && len(rec.Effects) > 0 {
		out.Effects = rec.Effects.Clone()
	}
	if len(out.Consumers) == 0 && len(rec.Consumers) > 0 {
		out.Consumers = append([]string(nil), rec.Consumers...)
	}
	if out.Context.IsEmpty() && !rec.Context.IsEmpty() {
		out.Context = types.MethodContext{
			Requires: append([]string(nil), rec.Context.Requires...),
			Provides: append([]string(nil), rec.Context.Provides...),
		}
	}
	return out
}

// Status classifies entry. A method documented in source with a role tag and
// a description is complete on its own; otherwise a fresh record decides, a
// stale record makes it outdated, and any source metadata makes it partial.
func (c *Cache) Status(entry *types.MethodEntry) Status {
	if entry == nil {
		return StatusMissing
	}
	if entry.RoleSource == types.RoleSourceDoc && entry.Description != "" {
		return StatusComplete
	}

	c.mu.RLock()
	rec, ok := c.records[entry.Key]
	c.mu.RUnlock()

	if ok && rec.AnnotatedBodyHash == entry.BodyHash {
		merged := c.MergeWithMethod(entry, entry.Key)
		if merged.Description != "" && merged.RoleSource != types.RoleSourceDefault {
			return StatusComplete
		}
		return StatusPartial
	}
	if ok {
		return StatusOutdated
	}
	if hasSourceMetadata(entry) {
		return StatusPartial
	}
	return StatusMissing
}

func hasSourceMetadata(m *types.MethodEntry) bool {
	return m.RoleSource == types.RoleSourceDoc ||
		m.Description != "" ||
		len(m.Effects) > 0 ||
		len(m.Consumers) > 0 ||
		!m.Context.IsEmpty()
}

func cloneRecord(rec *types.AnnotationRecord) *types.AnnotationRecord {
	cp := *rec
	cp.Effects = rec.Effects.Clone()
	cp.Consumers = append([]string(nil), rec.Consumers...)
	cp.Context = types.MethodContext{
		Requires: append([]string(nil), rec.Context.Requires...),
		Provides: append([]string(nil), rec.Context.Provides...),
	}
	return &cp
}
