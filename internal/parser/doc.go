package parser

import (
	"bytes"
	"strings"

	"github.com/standardbeagle/methodmap/internal/types"
)

// leadingModifiers may sit between a doc block and the declaration node
var leadingModifiers = []string{
	"export", "default", "static", "async", "public", "private", "protected",
	"readonly", "abstract", "override", "declare", "final", "get", "set", "function",
}

// findDocComment locates the /** */ block attached to a declaration starting at
// declStart. The block's closing marker must lie within lookback bytes and be
// separated from the declaration only by whitespace and modifier keywords.
func findDocComment(content []byte, declStart, lookback int) (string, int, bool) {
	winStart := declStart - lookback
	if winStart < 0 {
		winStart = 0
	}

	i := declStart
	for {
		i = skipSpaceBackward(content, i, winStart)
		kwEnd := i
		for _, kw := range leadingModifiers {
			start := i - len(kw)
			if start < winStart || string(content[start:i]) != kw {
				continue
			}
			if start > 0 && isIdentByte(content[start-1]) {
				continue
			}
			i = start
			break
		}
		if i == kwEnd {
			break
		}
	}

	if i-2 < winStart || string(content[i-2:i]) != "*/" {
		return "", 0, false
	}
	closeAt := i - 2
	open := bytes.LastIndex(content[:closeAt], []byte("/**"))
	if open < 0 || open+3 > closeAt {
		return "", 0, false
	}
	if bytes.Contains(content[open+3:closeAt], []byte("*/")) {
		return "", 0, false
	}
	return string(content[open:i]), open, true
}

func skipSpaceBackward(content []byte, i, floor int) int {
	for i > floor {
		switch content[i-1] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			i--
		default:
			return i
		}
	}
	return i
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// DocInfo holds the recognized parts of a documentation block
type DocInfo struct {
	Description string
	Role        types.Role // empty when no valid @role tag
	Effects     types.Effects
	Consumers   []string
	Context     types.MethodContext
}

// ParseDoc extracts the description and recognized tags from a /** */ block.
// Repeated tags accumulate; unknown tags are ignored.
func ParseDoc(comment string) DocInfo {
	info := DocInfo{Effects: types.Effects{}}

	var description []string
	var tags []string
	for _, line := range docLines(comment) {
		if strings.HasPrefix(line, "@") {
			tags = append(tags, line)
			continue
		}
		if len(tags) == 0 {
			description = append(description, line)
		} else if line != "" {
			tags[len(tags)-1] += " " + line
		}
	}
	info.Description = strings.Join(strings.Fields(strings.Join(description, " ")), " ")

	for _, tag := range tags {
		name, rest, _ := strings.Cut(tag[1:], " ")
		name = strings.ToLower(strings.TrimSpace(name))
		rest = strings.TrimSpace(rest)

		switch name {
		case "role":
			if fields := strings.Fields(rest); len(fields) > 0 {
				if role, ok := types.ParseRole(strings.Trim(fields[0], "{}[]:,.")); ok {
					info.Role = role
				}
			}
		case "consumers", "consumer":
			info.Consumers = appendUnique(info.Consumers, splitList(rest)...)
		case "effect", "effects":
			kind, targets, _ := strings.Cut(rest, " ")
			info.Effects.Add(strings.TrimRight(kind, ":"), splitList(targets)...)
		case types.EffectCreates, types.EffectMutates, types.EffectEmits, types.EffectStores, types.EffectResets:
			info.Effects.Add(name, splitList(rest)...)
		case "context":
			parseContext(&info.Context, rest)
		case "requires":
			info.Context.Requires = appendUnique(info.Context.Requires, splitList(rest)...)
		case "provides":
			info.Context.Provides = appendUnique(info.Context.Provides, splitList(rest)...)
		}
	}

	if len(info.Effects) == 0 {
		info.Effects = nil
	}
	return info
}

// docLines strips the comment markers and leading asterisks
func docLines(comment string) []string {
	comment = strings.TrimSpace(comment)
	comment = strings.TrimPrefix(comment, "/**")
	comment = strings.TrimSuffix(comment, "*/")

	raw := strings.Split(comment, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		l = strings.TrimLeft(l, "*")
		lines = append(lines, strings.TrimSpace(l))
	}
	return lines
}

// parseContext reads "requires: a, b; provides: c" with ; or | between parts
func parseContext(ctx *types.MethodContext, rest string) {
	parts := strings.FieldsFunc(rest, func(r rune) bool { return r == ';' || r == '|' })
	for _, part := range parts {
		key, values, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "requires", "require":
			ctx.Requires = appendUnique(ctx.Requires, splitList(values)...)
		case "provides", "provide":
			ctx.Provides = appendUnique(ctx.Provides, splitList(values)...)
		}
	}
}

// splitList splits on commas and whitespace, dropping brackets and empties
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "[]{}()\"'`.;")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
