package annotations

import (
	"sort"

	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/types"
)

// CodeFunc returns the live source text of a method and the body hash of
// that text
type CodeFunc func(key string) (code, bodyHash string, ok bool)

// Backfill writes heuristic records for every method whose status is missing,
// or outdated with a heuristic record, then saves the cache. Outdated external
// and manual records, partial and complete methods are left alone. Records are
// pinned to the hash of the code they were derived from. It returns the keys
// it annotated in sorted order.
func Backfill(c *Cache, h *Heuristic, methods []*types.MethodEntry, code CodeFunc) ([]string, error) {
	var written []string
	for _, m := range methods {
		switch c.Status(m) {
		case StatusMissing:
		case StatusOutdated:
			if rec, ok := c.Get(m.Key); ok && rec.Source != types.SourceHeuristic {
				continue
			}
		default:
			continue
		}
		text, hash, ok := code(m.Key)
		if !ok || hash == "" {
			continue
		}
		if hash != m.BodyHash {
			debug.LogAnnotate("%s changed since it was indexed", m.Key)
		}
		if err := c.Set(m.Key, h.Annotate(m, text), hash); err != nil {
			return written, err
		}
		written = append(written, m.Key)
	}
	sort.Strings(written)

	if len(written) > 0 {
		if err := c.Save(); err != nil {
			return written, err
		}
	}
	debug.LogAnnotate("heuristic backfill wrote %d records", len(written))
	return written, nil
}
