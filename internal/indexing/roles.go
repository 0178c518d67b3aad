package indexing

import (
	"regexp"

	"github.com/standardbeagle/methodmap/internal/config"
	"github.com/standardbeagle/methodmap/internal/types"
)

type roleRule struct {
	pattern *regexp.Regexp
	role    types.Role
}

// RoleInferer applies the ordered naming-convention rules
type RoleInferer struct {
	rules []roleRule
}

// NewRoleInferer compiles rules; the factory placeholder becomes an anchored
// match on the factory token. Invalid rules are skipped (Validate reports them).
func NewRoleInferer(rules []config.RoleRule, factoryToken string) *RoleInferer {
	ri := &RoleInferer{}
	for _, r := range rules {
		role, ok := types.ParseRole(r.Role)
		if !ok {
			continue
		}
		pattern := r.Pattern
		if pattern == config.FactoryPlaceholder {
			if factoryToken == "" {
				continue
			}
			pattern = "^" + regexp.QuoteMeta(factoryToken) + "$"
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		ri.rules = append(ri.rules, roleRule{pattern: re, role: role})
	}
	return ri
}

// Infer returns the first matching rule's role. Private names fall back to
// internal; anything else defaults to internal with a default source.
func (ri *RoleInferer) Infer(name string, isPrivate bool) (types.Role, types.RoleSource) {
	for _, r := range ri.rules {
		if r.pattern.MatchString(name) {
			return r.role, types.RoleSourceHeuristic
		}
	}
	if isPrivate {
		return types.RoleInternal, types.RoleSourceHeuristic
	}
	return types.RoleInternal, types.RoleSourceDefault
}
