// Package search ranks indexed methods against free-text queries and wraps a
// query's results in a session that can be refined step by step.
//
// Scoring is additive with no early exit. Every term contributes a fixed,
// non-negative amount, so adding words to a query never lowers a method's
// score.
package search

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/standardbeagle/methodmap/internal/annotations"
	"github.com/standardbeagle/methodmap/internal/config"
	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/types"
)

// Index is the read side of the indexer the engine needs
type Index interface {
	Methods() []*types.MethodEntry
	Method(key string) (*types.MethodEntry, bool)
	MethodsByClass(class string) []*types.MethodEntry
	ExtractMethodCode(key string) (string, bool)
	AbsPath(rel string) string
}

// Options controls one search. Zero values take the configured defaults;
// a non-nil empty ExcludeRoles disables the default exclusion.
type Options struct {
	MaxMethods     int
	MinScore       int
	IncludePrivate bool
	IncludeRoles   []types.Role
	ExcludeRoles   []types.Role
	DisableRetry   bool

	isRetry bool
	exclude map[string]bool
}

// ScoredMethod is one ranked result. Methods pulled in by expansion carry
// score 0 and Expanded=true.
type ScoredMethod struct {
	Key      string             `json:"key"`
	Score    int                `json:"score"`
	Entry    *types.MethodEntry `json:"entry"`
	Reasons  []string           `json:"reasons,omitempty"`
	Fallback bool               `json:"fallback,omitempty"`
	Expanded bool               `json:"expanded,omitempty"`
}

var explicitRefPattern = regexp.MustCompile(`([A-Za-z_$][\w$]*)\.([A-Za-z_$#][\w$#]*)`)

type Engine struct {
	idx     Index
	cache   *annotations.Cache
	cfg     config.Search
	expand  config.Expand
	stemmer *Stemmer
}

// NewEngine builds an engine over idx. cache may be nil.
func NewEngine(idx Index, cache *annotations.Cache, cfg config.Search, expand config.Expand) *Engine {
	return &Engine{
		idx:     idx,
		cache:   cache,
		cfg:     cfg,
		expand:  expand,
		stemmer: NewStemmer(cfg.StemDescriptions, 4),
	}
}

// DefaultOptions returns the configured search options
func (e *Engine) DefaultOptions() Options {
	return Options{
		MaxMethods:     e.cfg.MaxMethods,
		MinScore:       e.cfg.MinScore,
		IncludePrivate: e.cfg.IncludePrivate,
		IncludeRoles:   parseRoles(e.cfg.IncludeRoles),
		ExcludeRoles:   parseRoles(e.cfg.ExcludeRoles),
	}
}

// Cache is the annotation cache merged into results, possibly nil
func (e *Engine) Cache() *annotations.Cache {
	return e.cache
}

// Index is the index the engine reads
func (e *Engine) Index() Index {
	return e.idx
}

// Method returns the entry for key with fresh annotations merged in
func (e *Engine) Method(key string) (*types.MethodEntry, bool) {
	m, ok := e.idx.Method(key)
	if !ok {
		return nil, false
	}
	return e.merge(m), true
}

func (e *Engine) merge(m *types.MethodEntry) *types.MethodEntry {
	if e.cache == nil {
		return m
	}
	return e.cache.MergeWithMethod(m, m.Key)
}

func (e *Engine) resolve(opts Options) Options {
	if opts.MaxMethods <= 0 {
		opts.MaxMethods = e.cfg.MaxMethods
	}
	if opts.MaxMethods <= 0 {
		opts.MaxMethods = config.DefaultMaxMethods
	}
	if opts.MinScore <= 0 {
		opts.MinScore = e.cfg.MinScore
	}
	if opts.MinScore <= 0 {
		opts.MinScore = config.DefaultMinScore
	}
	if opts.IncludeRoles == nil {
		opts.IncludeRoles = parseRoles(e.cfg.IncludeRoles)
	}
	if opts.ExcludeRoles == nil {
		opts.ExcludeRoles = parseRoles(e.cfg.ExcludeRoles)
	}
	return opts
}

// FindRelevantMethods scores every indexed method against query and returns
// the best matches, highest score first with ties broken by key. When nothing
// passes, it retries once with role filters cleared, private methods included
// and a lower threshold; those results are flagged Fallback.
func (e *Engine) FindRelevantMethods(query string, opts Options) []ScoredMethod {
	start := time.Now()
	opts = e.resolve(opts)
	q := newQuery(query, e.stemmer)

	var results []ScoredMethod
	for _, m := range e.idx.Methods() {
		if opts.exclude[m.Key] {
			continue
		}
		m = e.merge(m)
		if !passesFilters(m, opts) {
			continue
		}
		score, reasons := e.score(m, q)
		if score < opts.MinScore {
			continue
		}
		results = append(results, ScoredMethod{Key: m.Key, Score: score, Entry: m, Reasons: reasons, Fallback: opts.isRetry})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})
	if len(results) > opts.MaxMethods {
		results = results[:opts.MaxMethods]
	}

	debug.LogSearch("query %q: %d results (retry=%v) in %s", query, len(results), opts.isRetry, time.Since(start))

	if len(results) == 0 && !opts.isRetry && !opts.DisableRetry {
		return e.FindRelevantMethods(query, widen(opts))
	}
	return results
}

// widen relaxes opts for the single fallback retry
func widen(opts Options) Options {
	opts.isRetry = true
	opts.IncludeRoles = []types.Role{}
	opts.ExcludeRoles = []types.Role{}
	opts.IncludePrivate = true
	opts.MinScore -= config.RetryMinScoreStep
	if opts.MinScore < config.RetryMinScore {
		opts.MinScore = config.RetryMinScore
	}
	return opts
}

func passesFilters(m *types.MethodEntry, opts Options) bool {
	if m.IsPrivate && !opts.IncludePrivate {
		return false
	}
	if len(opts.IncludeRoles) > 0 && !hasRole(opts.IncludeRoles, m.Role) {
		return false
	}
	if hasRole(opts.ExcludeRoles, m.Role) {
		return false
	}
	return true
}

type query struct {
	text   string
	tokens []string
	stems  []string
	refs   [][2]string // lower-cased class/method pairs named explicitly
}

func newQuery(text string, stemmer *Stemmer) query {
	q := query{text: text}
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, `"'.,;:!?()[]{}`)
		if len(f) > 2 {
			q.tokens = append(q.tokens, f)
			q.stems = append(q.stems, stemmer.Stem(f))
		}
	}
	for _, m := range explicitRefPattern.FindAllStringSubmatch(text, -1) {
		q.refs = append(q.refs, [2]string{strings.ToLower(m[1]), strings.ToLower(m[2])})
	}
	return q
}

// score applies the additive ranking contract to one method
func (e *Engine) score(m *types.MethodEntry, q query) (int, []string) {
	score := 0
	var reasons []string
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, reason)
	}

	name := strings.ToLower(m.Name)
	class := strings.ToLower(m.Class)

	if class != "" {
		for _, ref := range q.refs {
			if ref[0] == class && ref[1] == name {
				add(config.ScoreExplicitReference, "explicit reference")
				break
			}
		}
	}

	desc := strings.ToLower(m.Description)
	var descStems map[string]bool
	if desc != "" && e.stemmer.IsEnabled() {
		descStems = e.stemmer.StemSet(desc)
	}

	for i, tok := range q.tokens {
		switch {
		case tok == name:
			add(config.ScoreExactMethodName, "method name "+tok)
		case len(tok) > 3 && strings.Contains(name, tok):
			add(config.ScorePartialMethodName, "partial method name "+tok)
		}

		if class != "" && tok == class {
			add(config.ScoreExactClassName, "class name "+tok)
		}

		if desc != "" && (strings.Contains(desc, tok) || descStems[q.stems[i]]) {
			add(config.ScoreDescriptionHit, "description "+tok)
		}

		for _, c := range m.Consumers {
			if strings.Contains(strings.ToLower(c), tok) {
				add(config.ScoreConsumerHit, "consumer "+c)
			}
		}

		for _, target := range m.Effects.Targets() {
			if strings.Contains(strings.ToLower(target), tok) {
				add(config.ScoreEffectTargetHit, "effect "+target)
			}
		}
	}

	switch m.Role {
	case types.RoleEntry:
		add(config.ScoreRoleEntry, "role entry")
	case types.RoleCore:
		add(config.ScoreRoleCore, "role core")
	}
	return score, reasons
}

// Score returns the score query would give the method at key, ignoring filters
func (e *Engine) Score(key, query string) (int, bool) {
	m, ok := e.Method(key)
	if !ok {
		return 0, false
	}
	s, _ := e.score(m, newQuery(query, e.stemmer))
	return s, true
}

// CreatorNames returns the method names treated as class creators
func (e *Engine) CreatorNames() []string {
	var names []string
	if e.expand.FactoryToken != "" {
		names = append(names, e.expand.FactoryToken)
	}
	for _, s := range e.expand.CreatorSuffixes {
		if s != "" && s != e.expand.FactoryToken {
			names = append(names, s)
		}
	}
	return names
}

func parseRoles(names []string) []types.Role {
	roles := make([]types.Role, 0, len(names))
	for _, n := range names {
		if r, ok := types.ParseRole(n); ok {
			roles = append(roles, r)
		}
	}
	return roles
}

func hasRole(roles []types.Role, r types.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}
