package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/methodmap/internal/annotations"
	"github.com/standardbeagle/methodmap/internal/types"
)

// galaxyIndex models a small game: Galaxy.spawn is consumed by Universe and
// creates Orbs; Universe.boot is consumed by Cosmos.
func galaxyIndex(t *testing.T) *fakeIndex {
	spawn := method("Galaxy", "spawn", types.RoleCore, types.RoleSourceDoc)
	spawn.File = "src/galaxy.js"
	spawn.Description = "Spawns orbs into the galaxy"
	spawn.Consumers = []string{"Universe"}
	spawn.Effects = types.Effects{types.EffectCreates: {"Orb"}}

	tick := method("Universe", "tick", types.RoleFlow, types.RoleSourceHeuristic)
	tick.File = "src/universe.js"
	boot := method("Universe", "boot", types.RoleEntry, types.RoleSourceHeuristic)
	boot.File = "src/universe.js"
	boot.Consumers = []string{"Cosmos"}

	start := method("Cosmos", "start", types.RoleEntry, types.RoleSourceHeuristic)
	start.File = "src/cosmos.js"

	nova := method("Orb", "nova", types.RoleHelper, types.RoleSourceDoc)
	nova.Description = "Creates a new orb"
	nova.File = "src/orb.js"
	spin := method("Orb", "spin", types.RoleInternal, types.RoleSourceDefault)
	spin.File = "src/orb.js"

	return newFakeIndex(t, spawn, tick, boot, start, nova, spin)
}

func TestSession_ExcludeSurvivesRetry(t *testing.T) {
	fi := galaxyIndex(t)
	e := newTestEngine(fi, nil)

	s := NewSession(e, "spawn galaxy orb", Options{})
	require.Contains(t, s.Keys(), "Galaxy.spawn")

	removed := s.Exclude("Galaxy.spawn", "Not.there")
	assert.Equal(t, 1, removed)
	assert.NotContains(t, s.Keys(), "Galaxy.spawn")

	s.Retry("", nil)
	assert.NotContains(t, s.Keys(), "Galaxy.spawn")
	assert.Contains(t, s.Keys(), "Orb.nova")

	s.Retry("galaxy spawn", &Options{DisableRetry: true})
	assert.NotContains(t, s.Keys(), "Galaxy.spawn")
	assert.Equal(t, "galaxy spawn", s.Query())
	assert.Equal(t, []string{"Galaxy.spawn", "Not.there"}, s.Excluded())
}

func TestSession_ExpandBothDirections(t *testing.T) {
	fi := galaxyIndex(t)
	e := newTestEngine(fi, nil)

	s := NewSession(e, "spawns", Options{})
	require.Equal(t, []string{"Galaxy.spawn"}, s.Keys())

	added := s.Expand("Galaxy.spawn", ExpandOptions{Depth: 1, Direction: DirectionBoth})
	assert.Equal(t, []string{"Universe.boot", "Universe.tick", "Orb.nova"}, added)
	assert.Equal(t, []string{"Galaxy.spawn", "Universe.boot", "Universe.tick", "Orb.nova"}, s.Keys())

	for _, r := range s.Results()[1:] {
		assert.Equal(t, 0, r.Score)
		assert.True(t, r.Expanded)
	}

	// second expansion of the same key is a no-op
	assert.Empty(t, s.Expand("Galaxy.spawn", ExpandOptions{Depth: 3}))
	assert.Len(t, s.Keys(), 4)
}

func TestSession_ExpandDirectionsAndDepth(t *testing.T) {
	fi := galaxyIndex(t)
	e := newTestEngine(fi, nil)

	calls := NewSession(e, "spawns", Options{})
	assert.Equal(t, []string{"Orb.nova"}, calls.Expand("Galaxy.spawn", ExpandOptions{Direction: DirectionCalls}))

	callers := NewSession(e, "spawns", Options{})
	assert.Equal(t, []string{"Universe.boot", "Universe.tick"}, callers.Expand("Galaxy.spawn", ExpandOptions{Direction: DirectionCallers}))

	deep := NewSession(e, "spawns", Options{})
	added := deep.Expand("Galaxy.spawn", ExpandOptions{Depth: 2, Direction: DirectionCallers})
	assert.Equal(t, []string{"Universe.boot", "Universe.tick", "Cosmos.start"}, added)
}

func TestSession_ExpandSkipsExcludedAndUnknown(t *testing.T) {
	fi := galaxyIndex(t)
	e := newTestEngine(fi, nil)

	s := NewSession(e, "spawns", Options{})
	s.Exclude("Universe.tick")
	added := s.Expand("Galaxy.spawn", ExpandOptions{Direction: DirectionCallers})
	assert.Equal(t, []string{"Universe.boot"}, added)

	assert.Empty(t, s.Expand("Missing.key", ExpandOptions{}))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionBoth, d)

	d, err = ParseDirection("Callers")
	require.NoError(t, err)
	assert.Equal(t, DirectionCallers, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestSession_GetAtLevel(t *testing.T) {
	fi := galaxyIndex(t)
	fi.writeFile(t, "src/galaxy.js", "class Galaxy {\n  spawn() {}\n}\n")
	fi.writeFile(t, "src/orb.js", "class Orb {\n  static nova() {}\n}\n")
	e := newTestEngine(fi, nil)

	s := NewSession(e, "spawns", Options{})
	s.Expand("Galaxy.spawn", ExpandOptions{Direction: DirectionCalls})

	v0, err := s.GetAtLevel(0)
	require.NoError(t, err)
	require.Len(t, v0.Methods, 2)
	assert.Equal(t, "Galaxy.spawn", v0.Methods[0].Key)
	assert.Empty(t, v0.Methods[0].Description)
	assert.Empty(t, v0.Methods[0].Signature)

	v1, err := s.GetAtLevel(1)
	require.NoError(t, err)
	assert.Equal(t, "Spawns orbs into the galaxy", v1.Methods[0].Description)
	assert.Equal(t, types.RoleCore, v1.Methods[0].Role)
	assert.Empty(t, v1.Methods[0].Signature)

	v2, err := s.GetAtLevel(2)
	require.NoError(t, err)
	assert.Equal(t, "spawn()", v2.Methods[0].Signature)
	assert.Equal(t, []string{"Universe"}, v2.Methods[0].Consumers)
	assert.Empty(t, v2.Methods[0].Code)

	v3, err := s.GetAtLevel(3)
	require.NoError(t, err)
	assert.Equal(t, "spawn() {}", v3.Methods[0].Code)
	assert.Positive(t, v3.EstimatedTokens)
	extracted := fi.extract
	_, err = s.GetAtLevel(3)
	require.NoError(t, err)
	assert.Equal(t, extracted, fi.extract, "code is extracted once per session")

	v4, err := s.GetAtLevel(4)
	require.NoError(t, err)
	require.Len(t, v4.Files, 2)
	assert.Equal(t, "src/galaxy.js", v4.Files[0].Path)
	assert.Equal(t, []string{"Galaxy.spawn"}, v4.Files[0].Keys)
	assert.Contains(t, v4.Files[1].Content, "static nova()")

	_, err = s.GetAtLevel(5)
	assert.Error(t, err)
	_, err = s.GetAtLevel(-1)
	assert.Error(t, err)
}

func TestSession_LoadCodeAndFile(t *testing.T) {
	fi := galaxyIndex(t)
	fi.writeFile(t, "src/orb.js", "class Orb {}\n")
	e := newTestEngine(fi, nil)
	s := NewSession(e, "spawns", Options{})

	code := s.LoadCode("Orb.nova", "Missing.key")
	assert.Equal(t, map[string]string{"Orb.nova": "nova() {}"}, code)
	s.LoadCode("Orb.nova")
	assert.Equal(t, 1, fi.extract)

	content, ok := s.LoadFile("src/orb.js")
	require.True(t, ok)
	assert.Equal(t, "class Orb {}\n", content)

	// served from the session cache even after the file changes
	fi.writeFile(t, "src/orb.js", "changed")
	content, _ = s.LoadFile("src/orb.js")
	assert.Equal(t, "class Orb {}\n", content)

	_, ok = s.LoadFile("src/missing.js")
	assert.False(t, ok)
}

func TestSession_HistoryIsAppendOnly(t *testing.T) {
	fi := galaxyIndex(t)
	e := newTestEngine(fi, nil)

	s := NewSession(e, "spawns", Options{})
	s.Exclude("Orb.spin")
	s.Expand("Galaxy.spawn", ExpandOptions{})
	s.Retry("orb", nil)
	_, _ = s.GetAtLevel(0)

	h := s.History()
	ops := make([]string, len(h))
	for i, entry := range h {
		ops[i] = entry.Op
	}
	assert.Equal(t, []string{OpSearch, OpExclude, OpExpand, OpRetry, OpLevel}, ops)
	assert.Equal(t, "spawns", h[0].Query)
	assert.Equal(t, "orb", h[3].Query)

	h[0].Op = "tampered"
	assert.Equal(t, OpSearch, s.History()[0].Op)
}

func TestSession_AnnotationsRoundTrip(t *testing.T) {
	fi := galaxyIndex(t)
	cache := annotations.NewCache()
	e := newTestEngine(fi, cache)

	s := NewSession(e, "universe", Options{ExcludeRoles: []types.Role{}})
	s.Exclude("Galaxy.spawn")
	require.ElementsMatch(t, []string{"Universe.boot", "Universe.tick"}, s.Keys())

	statuses := map[string]annotations.Status{}
	for _, c := range s.CheckAnnotations() {
		statuses[c.Key] = c.Status
	}
	assert.Equal(t, annotations.StatusMissing, statuses["Universe.tick"])
	assert.Equal(t, annotations.StatusPartial, statuses["Universe.boot"], "consumers come from source")

	pending := s.MethodsNeedingAnnotation()
	require.Len(t, pending, 2)
	assert.Equal(t, "tick() {}", pendingCode(pending, "Universe.tick"))

	res, err := s.ApplyAnnotations([]AnnotationInput{
		{Key: "Universe.tick", BodyHash: fi.methods["Universe.tick"].BodyHash, Role: "flow", Description: "Advances the simulation", Source: "manual"},
		{Key: "Universe.boot", BodyHash: "stale"},
		{Key: "Universe.gone", BodyHash: "x"},
		{Key: "Universe.boot", BodyHash: fi.methods["Universe.boot"].BodyHash, Role: "boss"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Universe.tick"}, res.Applied)
	assert.Len(t, res.Rejected, 2)
	assert.Contains(t, res.Rejected, "Universe.gone")
	assert.Contains(t, res.Rejected, "Universe.boot")

	rec, ok := cache.Get("Universe.tick")
	require.True(t, ok)
	assert.Equal(t, types.SourceManual, rec.Source)

	for _, r := range s.Results() {
		if r.Key == "Universe.tick" {
			assert.Equal(t, "Advances the simulation", r.Entry.Description)
			assert.Equal(t, types.RoleSourceAnnotation, r.Entry.RoleSource)
		}
	}

	for _, c := range s.CheckAnnotations() {
		statuses[c.Key] = c.Status
	}
	assert.Equal(t, annotations.StatusComplete, statuses["Universe.tick"])
	assert.Equal(t, annotations.StatusPartial, statuses["Universe.boot"])

	// the body changes: the annotation goes stale
	fi.methods["Universe.tick"].BodyHash = "new-body"
	for _, c := range s.CheckAnnotations() {
		if c.Key == "Universe.tick" {
			assert.Equal(t, annotations.StatusOutdated, c.Status)
		}
	}
}

func TestSession_ApplyAnnotationsWithoutCache(t *testing.T) {
	fi := galaxyIndex(t)
	s := NewSession(newTestEngine(fi, nil), "universe", Options{})
	_, err := s.ApplyAnnotations([]AnnotationInput{{Key: "Universe.tick", BodyHash: "x"}})
	assert.Error(t, err)
}

func pendingCode(list []PendingAnnotation, key string) string {
	for _, p := range list {
		if p.Key == key {
			return p.Code
		}
	}
	return ""
}
