package reinject

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/methodmap/internal/snapshot"
)

// maxDiagnosticCandidates bounds how many windows the similarity pass scores
const maxDiagnosticCandidates = 50

// span is a byte range of the file content to replace
type span struct {
	start, end int
	indent     string // prefix to put before the replacement
	newline    string // line terminator to restore after it
	line       int
}

// locateExact finds the verbatim original code. When it occurs more than once
// the occurrence closest to the recorded line wins.
func locateExact(content, original string, line int) (span, bool) {
	if original == "" {
		return span{}, false
	}
	best, bestDist := -1, 0
	for from := 0; ; {
		i := strings.Index(content[from:], original)
		if i < 0 {
			break
		}
		at := from + i
		d := abs(lineOf(content, at) - line)
		if best < 0 || d < bestDist {
			best, bestDist = at, d
		}
		from = at + 1
	}
	if best < 0 {
		return span{}, false
	}
	return span{start: best, end: best + len(original), line: lineOf(content, best)}, true
}

// lineWindows holds a file split into lines plus the byte offset of each
type lineWindows struct {
	lines   []string
	offsets []int
}

func splitLines(content string) lineWindows {
	lines := strings.SplitAfter(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	offsets := make([]int, len(lines)+1)
	for i, l := range lines {
		offsets[i+1] = offsets[i] + len(l)
	}
	return lineWindows{lines: lines, offsets: offsets}
}

func (lw lineWindows) text(start, size int) string {
	return strings.Join(lw.lines[start:start+size], "")
}

func (lw lineWindows) span(start, size int) span {
	first := lw.lines[start]
	last := lw.lines[start+size-1]
	s := span{
		start:  lw.offsets[start],
		end:    lw.offsets[start+size],
		indent: first[:len(first)-len(strings.TrimLeft(first, " \t"))],
		line:   start + 1,
	}
	switch {
	case strings.HasSuffix(last, "\r\n"):
		s.newline = "\r\n"
	case strings.HasSuffix(last, "\n"):
		s.newline = "\n"
	}
	return s
}

// locateWindow scans whole-line windows of n-slack..n+slack lines whose
// normalized text equals the normalized original. Start lines are tried
// outward from the recorded line; windows that begin or end on a blank line
// are skipped so surrounding blank lines survive the replacement.
func locateWindow(lw lineWindows, target string, n, slack, line int) (span, bool) {
	if target == "" || len(lw.lines) == 0 {
		return span{}, false
	}
	sizes := []int{n}
	for d := 1; d <= slack; d++ {
		sizes = append(sizes, n-d, n+d)
	}

	for _, start := range outward(line-1, len(lw.lines)) {
		if isBlank(lw.lines[start]) {
			continue
		}
		head := snapshot.Normalize(lw.lines[start])
		if !strings.HasPrefix(target, head) {
			continue
		}
		for _, size := range sizes {
			if size < 1 || start+size > len(lw.lines) || isBlank(lw.lines[start+size-1]) {
				continue
			}
			if snapshot.Normalize(lw.text(start, size)) == target {
				return lw.span(start, size), true
			}
		}
	}
	return span{}, false
}

// diagnose scores candidate windows against the original purely to explain a
// failed lookup. Candidates start at the recorded line and at every line that
// mentions the method name, shifted back by the doc block height.
func diagnose(lw lineWindows, original, name string, line, maxChars int) (float64, int) {
	if len(lw.lines) == 0 {
		return 0, 0
	}
	origLines := splitLines(original).lines
	n := len(origLines)
	if n == 0 {
		return 0, 0
	}
	declOffset := 0
	for i, l := range origLines {
		if name != "" && strings.Contains(l, name) {
			declOffset = i
			break
		}
	}

	seen := make(map[int]bool)
	var starts []int
	add := func(s int) {
		if s < 0 {
			s = 0
		}
		if s >= len(lw.lines) || seen[s] || len(starts) >= maxDiagnosticCandidates {
			return
		}
		seen[s] = true
		starts = append(starts, s)
	}
	add(line - 1)
	if name != "" {
		for i, l := range lw.lines {
			if strings.Contains(l, name) {
				add(i - declOffset)
			}
		}
	}
	sort.Ints(starts)

	target := bound(snapshot.Normalize(original), maxChars)
	var bestSim float64
	bestLine := 0
	for _, s := range starts {
		size := n
		if s+size > len(lw.lines) {
			size = len(lw.lines) - s
		}
		candidate := bound(snapshot.Normalize(lw.text(s, size)), maxChars)
		sim, err := edlib.StringsSimilarity(candidate, target, edlib.Levenshtein)
		if err != nil {
			continue
		}
		if float64(sim) > bestSim {
			bestSim, bestLine = float64(sim), s+1
		}
	}
	return bestSim, bestLine
}

// outward lists indexes 0..count-1 starting at from and alternating outward
func outward(from, count int) []int {
	if from < 0 {
		from = 0
	}
	if from >= count {
		from = count - 1
	}
	order := make([]int, 0, count)
	order = append(order, from)
	for d := 1; len(order) < count; d++ {
		if from-d >= 0 {
			order = append(order, from-d)
		}
		if from+d < count {
			order = append(order, from+d)
		}
	}
	return order
}

func bound(s string, maxChars int) string {
	if maxChars > 0 && len(s) > maxChars {
		return s[:maxChars]
	}
	return s
}

func lineOf(content string, offset int) int {
	return strings.Count(content[:offset], "\n") + 1
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
