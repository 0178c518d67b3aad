package reinject

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const diffContext = 3

// methodDiff renders a unified diff of one method's old and new text
func methodDiff(file, key, before, after string) string {
	u := difflib.UnifiedDiff{
		A:        splitKeepNL(before),
		B:        splitKeepNL(after),
		FromFile: fmt.Sprintf("a/%s (%s)", file, key),
		ToFile:   fmt.Sprintf("b/%s (%s)", file, key),
		Context:  diffContext,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

func splitKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	lines := strings.SplitAfter(s, "\n")
	return lines[:len(lines)-1]
}
