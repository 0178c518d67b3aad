package snapshot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/methodmap/internal/parser"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Version: FormatVersion,
		Methods: map[string]*Method{
			"Orb.nova": {Code: "static nova(x, y) {\n    return new Orb(x, y);\n  }", File: "src/orb.js", Line: 6, EndLine: 8},
			"Orb.spin": {Code: "spin(a) {\n    this.a += a;\n  }", File: "src/orb.js", Line: 10, EndLine: 12},
		},
		Files: map[string]*File{"src/orb.js": {}},
	}
}

func TestRenderArtifact(t *testing.T) {
	out := RenderArtifact(sampleSnapshot())

	assert.True(t, strings.HasPrefix(out, "// methodmap edit artifact"))
	assert.Contains(t, out, "// @methodmap:begin Orb.nova src/orb.js:6-8\nstatic nova(x, y) {")
	assert.Contains(t, out, "  }\n// @methodmap:end Orb.nova\n")
	assert.Less(t, strings.Index(out, "Orb.nova"), strings.Index(out, "Orb.spin"))
}

func TestRenderArtifact_PHPHeader(t *testing.T) {
	s := &Snapshot{
		Methods: map[string]*Method{"User.load": {Code: "public function load() {}", File: "src/User.php", Line: 3, EndLine: 3}},
		Files:   map[string]*File{"src/User.php": {}},
	}
	assert.True(t, strings.HasPrefix(RenderArtifact(s), "<?php\n"))
}

func TestParseArtifact_MarkersRoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	blocks, usedMarkers, err := ParseArtifact(RenderArtifact(snap), ".js", nil)
	require.NoError(t, err)
	assert.True(t, usedMarkers)
	assert.Equal(t, snap.Methods["Orb.nova"].Code, blocks["Orb.nova"])
	assert.Equal(t, snap.Methods["Orb.spin"].Code, blocks["Orb.spin"])
}

func TestParseArtifact_EditedBodyAndCRLF(t *testing.T) {
	text := "// @methodmap:begin Orb.nova src/orb.js:6-8\r\n" +
		"static nova(x, y) {\r\n" +
		"    return new Orb(x * 2, y);\r\n" +
		"  }\r\n" +
		"// @methodmap:end Orb.nova\r\n"

	blocks, _, err := ParseArtifact(text, ".js", nil)
	require.NoError(t, err)
	assert.Equal(t, "static nova(x, y) {\r\n    return new Orb(x * 2, y);\r\n  }\r", blocks["Orb.nova"])
	assert.Equal(t, "static nova(x,y){return new Orb(x * 2,y);}", Normalize(blocks["Orb.nova"]))
}

func TestParseArtifact_HashMarkersAndIndentation(t *testing.T) {
	text := "  # @methodmap:begin helper\nfunction helper() {}\n  # @methodmap:end helper\n"
	blocks, used, err := ParseArtifact(text, ".php", nil)
	require.NoError(t, err)
	assert.True(t, used)
	assert.Equal(t, "function helper() {}", blocks["helper"])
}

func TestParseArtifact_MalformedMarkers(t *testing.T) {
	cases := map[string]string{
		"unclosed":   "// @methodmap:begin A.a\ncode\n",
		"mismatched": "// @methodmap:begin A.a\ncode\n// @methodmap:end B.b\n",
		"nested":     "// @methodmap:begin A.a\n// @methodmap:begin B.b\n",
		"orphan end": "code\n// @methodmap:end A.a\n",
		"duplicate":  "// @methodmap:begin A.a\nx\n// @methodmap:end A.a\n// @methodmap:begin A.a\ny\n// @methodmap:end A.a\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, used, err := ParseArtifact(text, ".js", nil)
			assert.Error(t, err)
			assert.True(t, used)
		})
	}
}

func TestParseArtifact_PlainSourceFallback(t *testing.T) {
	text := `class Orb {
  static nova(x, y) {
    return new Orb(y, x);
  }
}

function clamp(v) {
  return v;
}
`
	blocks, used, err := ParseArtifact(text, ".js", parser.New(0))
	require.NoError(t, err)
	assert.False(t, used)
	assert.Equal(t, "static nova(x, y) {\n    return new Orb(y, x);\n  }", blocks["Orb.nova"])
	assert.Equal(t, "function clamp(v) {\n  return v;\n}", blocks["clamp"])

	// a bare language name works as a hint too
	blocks, _, err = ParseArtifact(text, "js", parser.New(0))
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}

func TestParseArtifact_FallbackFailures(t *testing.T) {
	_, _, err := ParseArtifact("class Orb {}", ".js", nil)
	assert.Error(t, err, "no parser")

	_, _, err = ParseArtifact("class Orb {}", "", parser.New(0))
	assert.Error(t, err, "no hint")

	_, _, err = ParseArtifact("just prose", ".js", parser.New(0))
	assert.Error(t, err, "nothing recognizable")

	_, _, err = ParseArtifact("x", ".rb", parser.New(0))
	assert.Error(t, err, "unsupported language")
}
