package indexing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/methodmap/internal/config"
	"github.com/standardbeagle/methodmap/internal/types"
)

func TestRoleInferer_DefaultRules(t *testing.T) {
	ri := NewRoleInferer(config.DefaultRoleRules(), "nova")

	tests := []struct {
		name      string
		isPrivate bool
		role      types.Role
		source    types.RoleSource
	}{
		{"initGame", false, types.RoleEntry, types.RoleSourceHeuristic},
		{"nova", false, types.RoleHelper, types.RoleSourceHeuristic},
		{"novaBurst", false, types.RoleInternal, types.RoleSourceDefault},
		{"getRadius", false, types.RoleService, types.RoleSourceHeuristic},
		{"findOrb", false, types.RoleService, types.RoleSourceHeuristic},
		{"handleClick", false, types.RoleFlow, types.RoleSourceHeuristic},
		{"onResize", false, types.RoleFlow, types.RoleSourceHeuristic},
		{"once", false, types.RoleInternal, types.RoleSourceDefault},
		{"toJSON", false, types.RoleAdapter, types.RoleSourceHeuristic},
		{"_tick", false, types.RoleInternal, types.RoleSourceHeuristic},
		{"#secret", true, types.RoleInternal, types.RoleSourceHeuristic},
		{"hidden", true, types.RoleInternal, types.RoleSourceHeuristic},
		{"render", false, types.RoleInternal, types.RoleSourceDefault},
	}

	for _, tt := range tests {
		role, source := ri.Infer(tt.name, tt.isPrivate)
		assert.Equal(t, tt.role, role, tt.name)
		assert.Equal(t, tt.source, source, tt.name)
	}
}

func TestRoleInferer_CustomRulesAndFactory(t *testing.T) {
	ri := NewRoleInferer([]config.RoleRule{
		{Pattern: config.FactoryPlaceholder, Role: "helper"},
		{Pattern: "^boot", Role: "entry"},
		{Pattern: "(", Role: "core"},
		{Pattern: "^x", Role: "nonsense"},
	}, "spawn")

	role, _ := ri.Infer("spawn", false)
	assert.Equal(t, types.RoleHelper, role)
	role, _ = ri.Infer("bootstrap", false)
	assert.Equal(t, types.RoleEntry, role)
	role, source := ri.Infer("xray", false)
	assert.Equal(t, types.RoleInternal, role)
	assert.Equal(t, types.RoleSourceDefault, source)
}
