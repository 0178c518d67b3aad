package types

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Common system-wide constants
const (
	// DefaultMaxFileSize skips generated bundles and minified files
	DefaultMaxFileSize = 2 * 1024 * 1024

	// DefaultDocLookback bounds how far before a declaration a doc block may start
	DefaultDocLookback = 500

	// DefaultCheckpointEvery is the number of parsed files between index saves
	DefaultCheckpointEvery = 200
)

// Role classifies what a method does in its codebase
type Role string

const (
	RoleEntry    Role = "entry"
	RoleCore     Role = "core"
	RoleService  Role = "service"
	RoleFlow     Role = "flow"
	RoleBridge   Role = "bridge"
	RoleHelper   Role = "helper"
	RoleInternal Role = "internal"
	RoleAdapter  Role = "adapter"
)

// AllRoles lists the role enum in declaration order
var AllRoles = []Role{RoleEntry, RoleCore, RoleService, RoleFlow, RoleBridge, RoleHelper, RoleInternal, RoleAdapter}

// ParseRole accepts a role name in any case
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range AllRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// RoleSource records where a method's role came from
type RoleSource string

const (
	RoleSourceDoc        RoleSource = "doc"
	RoleSourceAnnotation RoleSource = "annotation"
	RoleSourceHeuristic  RoleSource = "heuristic"
	RoleSourceDefault    RoleSource = "default"
)

// Effect kinds recognized in doc tags and heuristics
const (
	EffectCreates = "creates"
	EffectMutates = "mutates"
	EffectEmits   = "emits"
	EffectStores  = "stores"
	EffectResets  = "resets"
)

// EffectKinds lists the known effect kinds
var EffectKinds = []string{EffectCreates, EffectMutates, EffectEmits, EffectStores, EffectResets}

// Effects maps an effect kind to the entities it touches
type Effects map[string][]string

// Add appends targets to kind, skipping duplicates
func (e Effects) Add(kind string, targets ...string) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return
	}
	existing := e[kind]
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" || containsString(existing, t) {
			continue
		}
		existing = append(existing, t)
	}
	if len(existing) > 0 {
		e[kind] = existing
	}
}

// Targets returns every entity named by any effect, sorted and de-duplicated
func (e Effects) Targets() []string {
	var out []string
	for _, kind := range e.Kinds() {
		for _, t := range e[kind] {
			if !containsString(out, t) {
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Kinds returns the effect kinds present, sorted
func (e Effects) Kinds() []string {
	kinds := make([]string, 0, len(e))
	for k := range e {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Clone returns a deep copy
func (e Effects) Clone() Effects {
	if e == nil {
		return nil
	}
	out := make(Effects, len(e))
	for k, v := range e {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// MethodContext lists what a method needs from and gives to its surroundings
type MethodContext struct {
	Requires []string `json:"requires,omitempty"`
	Provides []string `json:"provides,omitempty"`
}

// IsEmpty reports whether neither list is populated
func (c MethodContext) IsEmpty() bool {
	return len(c.Requires) == 0 && len(c.Provides) == 0
}

// MethodEntry is one indexed method or standalone function
type MethodEntry struct {
	Key         string        `json:"key"`
	FileKey     string        `json:"fileKey,omitempty"` // key within the owning file
	File        string        `json:"file"`
	Class       string        `json:"class,omitempty"`
	Name        string        `json:"name"`
	Signature   string        `json:"signature"`
	Params      string        `json:"params"`
	IsStatic    bool          `json:"isStatic"`
	IsPrivate   bool          `json:"isPrivate"`
	IsAsync     bool          `json:"isAsync"`
	Role        Role          `json:"role,omitempty"`
	RoleSource  RoleSource    `json:"roleSource,omitempty"`
	Description string        `json:"description,omitempty"`
	Effects     Effects       `json:"effects,omitempty"`
	Consumers   []string      `json:"consumers,omitempty"`
	Context     MethodContext `json:"context"`
	BodyHash    string        `json:"bodyHash"`
	StartLine   int           `json:"startLine"`
	EndLine     int           `json:"endLine"`
}

// Clone returns a deep copy so callers can merge without touching the index
func (m *MethodEntry) Clone() *MethodEntry {
	if m == nil {
		return nil
	}
	c := *m
	c.Effects = m.Effects.Clone()
	c.Consumers = append([]string(nil), m.Consumers...)
	c.Context = MethodContext{
		Requires: append([]string(nil), m.Context.Requires...),
		Provides: append([]string(nil), m.Context.Provides...),
	}
	return &c
}

// MethodKey builds the index identity for a method or bare function
func MethodKey(class, name string) string {
	if class == "" {
		return name
	}
	return class + "." + name
}

// ClassEntry is one declared class
type ClassEntry struct {
	Name        string `json:"name"`
	File        string `json:"file"`
	Extends     string `json:"extends,omitempty"`
	Role        Role   `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
	MethodCount int    `json:"methodCount"`
	StartLine   int    `json:"startLine"`
	EndLine     int    `json:"endLine"`
}

// FileRecord drives the incremental-skip decision
type FileRecord struct {
	Path        string    `json:"path"`
	MTime       int64     `json:"mtime"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"contentHash"`
	Language    string    `json:"language"`
	MethodCount int       `json:"methodCount"`
	ClassCount  int       `json:"classCount"`
	ParseErrors bool      `json:"parseErrors,omitempty"`
	IndexedAt   time.Time `json:"indexedAt"`
}

// Unchanged reports whether a stat result matches this record
func (f *FileRecord) Unchanged(mtime, size int64) bool {
	return f != nil && f.MTime == mtime && f.Size == size
}

// Index is the persisted aggregate root owned by the indexer
type Index struct {
	Version   int                     `json:"version"`
	Generated time.Time               `json:"generated"`
	Root      string                  `json:"root"`
	Files     map[string]*FileRecord  `json:"files"`
	Methods   map[string]*MethodEntry `json:"methods"`
	Classes   map[string]*ClassEntry  `json:"classes"`
}

// NewIndex returns an empty index
func NewIndex(version int, root string) *Index {
	return &Index{
		Version: version,
		Root:    root,
		Files:   make(map[string]*FileRecord),
		Methods: make(map[string]*MethodEntry),
		Classes: make(map[string]*ClassEntry),
	}
}

// RemoveFile drops every row owned by path and reports how many methods went away
func (idx *Index) RemoveFile(path string) int {
	removed := 0
	for key, m := range idx.Methods {
		if m.File == path {
			delete(idx.Methods, key)
			removed++
		}
	}
	for name, c := range idx.Classes {
		if c.File == path {
			delete(idx.Classes, name)
		}
	}
	delete(idx.Files, path)
	return removed
}

var dupSuffix = regexp.MustCompile(`#\d+$`)

// BaseKey strips the #n suffix that tells duplicate keys apart
func BaseKey(key string) string {
	return dupSuffix.ReplaceAllString(key, "")
}

// ResolveKeys assigns index keys so that methods sharing a key across files
// get #2, #3... suffixes in path then line order, and does the same for class
// names. A key freed by a removed file goes back to the next owner in order.
// Reports whether any existing key changed.
func (idx *Index) ResolveKeys() bool {
	changed := false

	groups := make(map[string][]*MethodEntry)
	for _, m := range idx.Methods {
		if m.FileKey == "" {
			m.FileKey = m.Key
		}
		base := BaseKey(m.FileKey)
		groups[base] = append(groups[base], m)
	}
	methods := make(map[string]*MethodEntry, len(idx.Methods))
	for base, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if a.File != b.File {
				return a.File < b.File
			}
			if a.StartLine != b.StartLine {
				return a.StartLine < b.StartLine
			}
			return a.FileKey < b.FileKey
		})
		for i, m := range group {
			key := disambiguate(base, i)
			if m.Key != key {
				changed = true
				m.Key = key
			}
			methods[key] = m
		}
	}
	idx.Methods = methods

	byName := make(map[string][]*ClassEntry)
	for k, c := range idx.Classes {
		if c.Name == "" {
			c.Name = BaseKey(k)
		}
		byName[c.Name] = append(byName[c.Name], c)
	}
	classes := make(map[string]*ClassEntry, len(idx.Classes))
	for name, group := range byName {
		sort.Slice(group, func(i, j int) bool {
			if group[i].File != group[j].File {
				return group[i].File < group[j].File
			}
			return group[i].StartLine < group[j].StartLine
		})
		for i, c := range group {
			classes[disambiguate(name, i)] = c
		}
	}
	idx.Classes = classes
	return changed
}

// MethodCounts returns the number of method rows per file
func (idx *Index) MethodCounts() map[string]int {
	counts := make(map[string]int, len(idx.Files))
	for _, m := range idx.Methods {
		counts[m.File]++
	}
	return counts
}

func disambiguate(base string, i int) string {
	if i == 0 {
		return base
	}
	return fmt.Sprintf("%s#%d", base, i+1)
}

// SortedMethodKeys returns all method keys in lexical order
func (idx *Index) SortedMethodKeys() []string {
	keys := make([]string, 0, len(idx.Methods))
	for k := range idx.Methods {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AnnotationSource records who produced an annotation
type AnnotationSource string

const (
	SourceHeuristic AnnotationSource = "heuristic"
	SourceExternal  AnnotationSource = "external"
	SourceManual    AnnotationSource = "manual"
)

// ParseAnnotationSource defaults unknown values to external
func ParseAnnotationSource(s string) AnnotationSource {
	switch AnnotationSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourceHeuristic:
		return SourceHeuristic
	case SourceManual:
		return SourceManual
	default:
		return SourceExternal
	}
}

// AnnotationRecord is metadata generated outside the source, valid for one body hash
type AnnotationRecord struct {
	Role              Role             `json:"role,omitempty"`
	Description       string           `json:"description,omitempty"`
	Effects           Effects          `json:"effects,omitempty"`
	Consumers         []string         `json:"consumers,omitempty"`
	Context           MethodContext    `json:"context"`
	AnnotatedBodyHash string           `json:"annotatedBodyHash"`
	Source            AnnotationSource `json:"source"`
	AnnotatedAt       time.Time        `json:"annotatedAt"`
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
