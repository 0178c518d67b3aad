package annotations

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/standardbeagle/methodmap/internal/types"
)

// RoleFunc infers a role from a method name
type RoleFunc func(name string, isPrivate bool) (types.Role, types.RoleSource)

type effectPattern struct {
	kind    string
	re      *regexp.Regexp
	literal string // target used when the pattern has no capture group
}

var effectPatterns = []effectPattern{
	{kind: types.EffectCreates, re: regexp.MustCompile(`\bnew\s+([A-Z][A-Za-z0-9_$]*)\s*\(`)},
	{kind: types.EffectMutates, re: regexp.MustCompile(`\bthis\.([A-Za-z_$][\w$]*)\s*(?:[-+*/%]|\?\?|\|\||&&)?=[^=]`)},
	{kind: types.EffectMutates, re: regexp.MustCompile(`\$this->([A-Za-z_]\w*)\s*(?:[-+*/.%]|\?\?)?=[^=>]`)},
	{kind: types.EffectEmits, re: regexp.MustCompile(`\.emit\(\s*['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]`)},
	{kind: types.EffectEmits, re: regexp.MustCompile(`dispatchEvent\(\s*new\s+(?:Custom)?Event\(\s*['"]([^'"]+)['"]`)},
	{kind: types.EffectEmits, re: regexp.MustCompile(`dispatchEvent\(\s*[A-Za-z_$]`), literal: "event"},
	{kind: types.EffectStores, re: regexp.MustCompile(`\b(?:localStorage|sessionStorage)\.setItem\(\s*['"]([^'"]+)['"]`)},
	{kind: types.EffectStores, re: regexp.MustCompile(`\b([A-Za-z_$]*[cC]ache)\.set\(`)},
	{kind: types.EffectResets, re: regexp.MustCompile(`\b([A-Za-z_$][\w$]*)\.clear\(\s*\)`)},
	{kind: types.EffectResets, re: regexp.MustCompile(`\b([A-Za-z_$][\w$]*)\.reset\(`)},
}

// Heuristic derives annotations from a method's name and code without any
// external help. Its records carry source=heuristic.
type Heuristic struct {
	role RoleFunc
	now  func() time.Time
}

// NewHeuristic builds an annotator. role may be nil, leaving the role empty.
func NewHeuristic(role RoleFunc) *Heuristic {
	return &Heuristic{role: role, now: time.Now}
}

// Annotate produces a record for entry from its extracted code, pinned to the
// entry's body hash.
func (h *Heuristic) Annotate(entry *types.MethodEntry, code string) types.AnnotationRecord {
	rec := types.AnnotationRecord{
		Description:       Describe(entry.Name),
		Effects:           DetectEffects(code),
		AnnotatedBodyHash: entry.BodyHash,
		Source:            types.SourceHeuristic,
		AnnotatedAt:       h.now().UTC(),
	}
	if h.role != nil {
		role, src := h.role(entry.Name, entry.IsPrivate)
		if src != types.RoleSourceDefault {
			rec.Role = role
		}
	}
	if len(rec.Effects) == 0 {
		rec.Effects = nil
	}
	return rec
}

// DetectEffects scans code for the side effects the heuristic recognizes
func DetectEffects(code string) types.Effects {
	effects := types.Effects{}
	for _, p := range effectPatterns {
		for _, m := range p.re.FindAllStringSubmatch(code, -1) {
			target := p.literal
			if len(m) > 1 {
				target = m[1]
			}
			effects.Add(p.kind, target)
		}
	}
	return effects
}

// Describe turns an identifier into a sentence: getUserName -> "Get user name".
func Describe(name string) string {
	words := SplitIdentifier(name)
	if len(words) == 0 {
		return ""
	}
	for i := range words {
		words[i] = strings.ToLower(words[i])
	}
	first := []rune(words[0])
	first[0] = unicode.ToUpper(first[0])
	words[0] = string(first)
	return strings.Join(words, " ")
}

// SplitIdentifier splits camelCase, PascalCase, snake_case and kebab-case
// names into words. Acronym runs stay together: parseHTTPResponse -> parse HTTP Response.
func SplitIdentifier(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '$' || r == '#' || r == '.' || unicode.IsSpace(r):
			flush()
			continue
		case unicode.IsUpper(r):
			if len(cur) > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
		case unicode.IsDigit(r):
			if len(cur) > 0 && !unicode.IsDigit(runes[i-1]) && !unicode.IsUpper(runes[i-1]) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}
