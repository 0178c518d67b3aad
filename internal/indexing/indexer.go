// Package indexing maintains the persistent structural index: it scans the
// project, parses changed files, infers roles, prunes deleted files and
// serves on-demand method extraction.
package indexing

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/methodmap/internal/config"
	"github.com/standardbeagle/methodmap/internal/debug"
	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/parser"
	"github.com/standardbeagle/methodmap/internal/storage"
	"github.com/standardbeagle/methodmap/internal/types"
	"github.com/standardbeagle/methodmap/internal/version"
	"github.com/standardbeagle/methodmap/pkg/pathutil"
)

// Indexer owns the index. Parsing runs in parallel per file; every index
// mutation happens under mu.
type Indexer struct {
	cfg     *config.Config
	parser  *parser.Parser
	scanner *FileScanner
	roles   *RoleInferer

	mu  sync.RWMutex
	idx *types.Index
}

// NewIndexer creates an indexer with an empty in-memory index; call Load to
// pick up a persisted one
func NewIndexer(cfg *config.Config, p *parser.Parser) *Indexer {
	if p == nil {
		p = parser.New(cfg.Index.DocLookback)
	}
	return &Indexer{
		cfg:     cfg,
		parser:  p,
		scanner: NewFileScanner(cfg),
		roles:   NewRoleInferer(cfg.Roles.Rules, cfg.Expand.FactoryToken),
		idx:     types.NewIndex(version.IndexFormat, cfg.Project.Root),
	}
}

// Load reads the persisted index. A missing file, a format change or a
// different root leaves an empty index so the next pass rebuilds it.
func (ix *Indexer) Load() error {
	var loaded types.Index
	found, err := storage.ReadJSON(ix.cfg.IndexPath(), &loaded)
	if err != nil {
		return mmerrors.NewFileError("load index", ix.cfg.IndexPath(), err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	switch {
	case !found:
		debug.LogIndexing("no persisted index at %s", ix.cfg.IndexPath())
		return nil
	case loaded.Version != version.IndexFormat:
		debug.LogIndexing("index format %d != %d, rebuilding", loaded.Version, version.IndexFormat)
		return nil
	case loaded.Root != ix.cfg.Project.Root:
		debug.LogIndexing("index root %s != %s, rebuilding", loaded.Root, ix.cfg.Project.Root)
		return nil
	}

	if loaded.Files == nil {
		loaded.Files = make(map[string]*types.FileRecord)
	}
	if loaded.Methods == nil {
		loaded.Methods = make(map[string]*types.MethodEntry)
	}
	if loaded.Classes == nil {
		loaded.Classes = make(map[string]*types.ClassEntry)
	}
	ix.idx = &loaded
	ix.idx.ResolveKeys()
	return nil
}

// Save persists the index atomically
func (ix *Indexer) Save() error {
	ix.mu.Lock()
	ix.idx.Generated = time.Now().UTC()
	err := storage.WriteJSON(ix.cfg.IndexPath(), ix.idx)
	ix.mu.Unlock()

	if err != nil {
		return mmerrors.NewFileError("save index", ix.cfg.IndexPath(), err)
	}
	return nil
}

// fileResult is the parse-phase output for one file, applied serially
type fileResult struct {
	file    ScannedFile
	record  *types.FileRecord
	methods []*types.MethodEntry
	classes []*types.ClassEntry
	err     error
}

// IndexAll brings the index up to date with the project tree. Unchanged files
// (same mtime and size) are skipped unless force is set; files that vanished
// are pruned. The index is saved after every checkpoint batch and at the end.
func (ix *Indexer) IndexAll(ctx context.Context, force bool) (*IndexStats, error) {
	start := time.Now()
	stats := &IndexStats{}

	files, err := ix.scanner.Scan(ctx)
	if err != nil {
		return stats, mmerrors.NewIndexingError("scan", err).WithRecoverable(ctx.Err() != nil)
	}

	seen := make(map[string]bool, len(files))
	var pending []ScannedFile

	ix.mu.RLock()
	rows := ix.idx.MethodCounts()
	for _, f := range files {
		seen[f.Rel] = true
		rec := ix.idx.Files[f.Rel]
		// a record whose rows went missing is re-parsed even when unchanged on disk
		if !force && rec.Unchanged(f.MTime, f.Size) && rows[f.Rel] == rec.MethodCount {
			stats.Skipped++
			continue
		}
		pending = append(pending, f)
	}
	ix.mu.RUnlock()

	debug.LogIndexing("scan found %d files, %d to index", len(files), len(pending))

	batchSize := ix.cfg.Index.CheckpointEvery
	if batchSize <= 0 {
		batchSize = len(pending)
	}

	for i := 0; i < len(pending); i += batchSize {
		if err := ctx.Err(); err != nil {
			return stats, ix.interrupted(err)
		}

		batch := pending[i:min(i+batchSize, len(pending))]
		results, err := ix.parseBatch(ctx, batch)
		if err != nil {
			return stats, ix.interrupted(err)
		}

		ix.mu.Lock()
		for _, r := range results {
			ix.apply(r, stats)
		}
		ix.idx.ResolveKeys()
		ix.mu.Unlock()

		if ix.cfg.Index.CheckpointEvery > 0 && i+batchSize < len(pending) {
			if err := ix.Save(); err != nil {
				return stats, err
			}
		}
	}

	ix.mu.Lock()
	for rel := range ix.idx.Files {
		if !seen[rel] {
			ix.idx.RemoveFile(rel)
			stats.Deleted++
			debug.LogIndexing("pruned %s", rel)
		}
	}
	ix.idx.ResolveKeys()
	stats.Methods = len(ix.idx.Methods)
	stats.Classes = len(ix.idx.Classes)
	ix.mu.Unlock()

	stats.Duration = time.Since(start)
	if err := ix.Save(); err != nil {
		return stats, err
	}
	return stats, nil
}

// interrupted saves completed work so a re-run resumes from it
func (ix *Indexer) interrupted(cause error) error {
	if err := ix.Save(); err != nil {
		debug.LogIndexing("save after interruption failed: %v", err)
	}
	return mmerrors.NewIndexingError("index", cause).WithRecoverable(true)
}

func (ix *Indexer) parseBatch(ctx context.Context, batch []ScannedFile) ([]fileResult, error) {
	results := make([]fileResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Workers())
	for i, f := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = ix.buildFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// apply replaces every row owned by the file. Rows never overwrite another
// file's rows; a colliding key takes a free #n slot until ResolveKeys runs.
// Callers hold mu.
func (ix *Indexer) apply(r fileResult, stats *IndexStats) {
	ix.idx.RemoveFile(r.file.Rel)

	if r.err != nil {
		stats.Errors++
		stats.Failures = append(stats.Failures, FileFailure{File: r.file.Rel, Error: r.err.Error()})
		debug.LogIndexing("failed to index %s: %v", r.file.Rel, r.err)
		return
	}

	for _, m := range r.methods {
		key := freeKey(m.Key, func(k string) bool { _, ok := ix.idx.Methods[k]; return ok })
		if key != m.Key {
			debug.LogIndexing("method key %s in %s is also defined elsewhere", m.Key, m.File)
		}
		m.Key = key
		ix.idx.Methods[key] = m
	}
	for _, c := range r.classes {
		key := freeKey(c.Name, func(k string) bool { _, ok := ix.idx.Classes[k]; return ok })
		ix.idx.Classes[key] = c
	}
	ix.idx.Files[r.file.Rel] = r.record
	stats.Updated++
}

func freeKey(key string, taken func(string) bool) string {
	if !taken(key) {
		return key
	}
	base := types.BaseKey(key)
	for n := 2; ; n++ {
		k := fmt.Sprintf("%s#%d", base, n)
		if !taken(k) {
			return k
		}
	}
}

// buildFile reads and parses one file into index rows without touching the index
func (ix *Indexer) buildFile(f ScannedFile) fileResult {
	res := fileResult{file: f}

	content, err := os.ReadFile(f.Abs)
	if err != nil {
		res.err = mmerrors.NewFileError("read", f.Rel, err)
		return res
	}
	if looksBinary(content) {
		res.err = mmerrors.NewParseError(f.Rel, 0, errBinaryContent)
		return res
	}

	structure, err := ix.parser.Parse(f.Rel, content)
	if err != nil {
		res.err = err
		return res
	}

	res.methods, res.classes = ix.buildEntries(f.Rel, structure, content)
	res.record = &types.FileRecord{
		Path:        f.Rel,
		MTime:       f.MTime,
		Size:        f.Size,
		ContentHash: storage.HashBytes(content),
		Language:    string(structure.Language),
		MethodCount: len(res.methods),
		ClassCount:  len(res.classes),
		ParseErrors: structure.HasErrors,
		IndexedAt:   time.Now().UTC(),
	}
	return res
}

// buildEntries merges structure, doc tags and role heuristics
func (ix *Indexer) buildEntries(rel string, fs *parser.FileStructure, content []byte) ([]*types.MethodEntry, []*types.ClassEntry) {
	methods := make([]*types.MethodEntry, 0, len(fs.Functions))
	for i := range fs.Functions {
		fn := &fs.Functions[i]
		doc := parser.ParseDoc(fn.DocComment)

		entry := &types.MethodEntry{
			Key:         fn.Key,
			FileKey:     fn.Key,
			File:        rel,
			Class:       fn.Class,
			Name:        fn.Name,
			Signature:   fn.Signature(),
			Params:      fn.Params,
			IsStatic:    fn.IsStatic,
			IsPrivate:   fn.IsPrivate,
			IsAsync:     fn.IsAsync,
			Description: doc.Description,
			Effects:     doc.Effects,
			Consumers:   doc.Consumers,
			Context:     doc.Context,
			BodyHash:    storage.HashString(fn.Declaration(content)),
			StartLine:   fn.StartLine,
			EndLine:     fn.EndLine,
		}
		if doc.Role != "" {
			entry.Role, entry.RoleSource = doc.Role, types.RoleSourceDoc
		} else {
			entry.Role, entry.RoleSource = ix.roles.Infer(fn.Name, fn.IsPrivate)
		}
		methods = append(methods, entry)
	}

	classes := make([]*types.ClassEntry, 0, len(fs.Classes))
	for _, c := range fs.Classes {
		doc := parser.ParseDoc(c.DocComment)
		classes = append(classes, &types.ClassEntry{
			Name:        c.Name,
			File:        rel,
			Extends:     c.Superclass,
			Role:        doc.Role,
			Description: doc.Description,
			MethodCount: len(c.Members),
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
		})
	}
	return methods, classes
}

// IndexFile re-indexes one file, removing it from the index when it no longer
// exists or is no longer eligible. Reports whether the index changed.
func (ix *Indexer) IndexFile(ctx context.Context, rel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	abs := ix.AbsPath(rel)
	info, err := os.Stat(abs)
	if err != nil || !ix.scanner.ShouldProcessFile(abs, info) {
		return ix.RemoveFile(rel) > 0, nil
	}

	f := ScannedFile{Rel: rel, Abs: abs, Size: info.Size(), MTime: info.ModTime().UnixNano()}

	ix.mu.RLock()
	unchanged := ix.idx.Files[rel].Unchanged(f.MTime, f.Size)
	ix.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	res := ix.buildFile(f)
	stats := &IndexStats{}
	ix.mu.Lock()
	ix.apply(res, stats)
	ix.idx.ResolveKeys()
	ix.mu.Unlock()

	if res.err != nil {
		return true, res.err
	}
	return true, nil
}

// RemoveFile drops a file and its rows; returns the number of methods removed
func (ix *Indexer) RemoveFile(rel string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, known := ix.idx.Files[rel]
	removed := ix.idx.RemoveFile(rel)
	ix.idx.ResolveKeys()
	if known || removed > 0 {
		debug.LogIndexing("removed %s (%d methods)", rel, removed)
	}
	return removed
}

// ExtractMethod re-parses the owning file and returns the method's current
// text. A missing key, file or method yields false.
func (ix *Indexer) ExtractMethod(key string) (*MethodSource, bool) {
	entry, ok := ix.Method(key)
	if !ok {
		return nil, false
	}

	abs := ix.AbsPath(entry.File)
	content, err := os.ReadFile(abs)
	if err != nil {
		debug.LogIndexing("extract %s: %v", key, err)
		return nil, false
	}

	structure, err := ix.parser.Parse(entry.File, content)
	if err != nil {
		debug.LogIndexing("extract %s: %v", key, err)
		return nil, false
	}
	fileKey := entry.FileKey
	if fileKey == "" {
		fileKey = key
	}
	fn, ok := structure.Function(fileKey)
	if !ok {
		return nil, false
	}

	decl := fn.Declaration(content)
	return &MethodSource{
		Key:         key,
		File:        entry.File,
		AbsPath:     abs,
		Code:        fn.Code(content),
		Declaration: decl,
		StartLine:   fn.DocStartLine,
		EndLine:     fn.EndLine,
		BodyHash:    storage.HashString(decl),
	}, true
}

// ExtractMethodCode returns the method text including its doc block
func (ix *Indexer) ExtractMethodCode(key string) (string, bool) {
	src, ok := ix.ExtractMethod(key)
	if !ok {
		return "", false
	}
	return src.Code, true
}

// Method returns a copy of the entry for key
func (ix *Indexer) Method(key string) (*types.MethodEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	m, ok := ix.idx.Methods[key]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Methods returns copies of all entries sorted by key
func (ix *Indexer) Methods() []*types.MethodEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	keys := ix.idx.SortedMethodKeys()
	out := make([]*types.MethodEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, ix.idx.Methods[k].Clone())
	}
	return out
}

// MethodsByClass returns the entries owned by a class, sorted by key
func (ix *Indexer) MethodsByClass(class string) []*types.MethodEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []*types.MethodEntry
	for _, m := range ix.idx.Methods {
		if m.Class == class {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Class returns a copy of the class entry
func (ix *Indexer) Class(name string) (*types.ClassEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	c, ok := ix.idx.Classes[name]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// Classes returns copies of all class entries sorted by name
func (ix *Indexer) Classes() []*types.ClassEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*types.ClassEntry, 0, len(ix.idx.Classes))
	for _, c := range ix.idx.Classes {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].File < out[j].File
	})
	return out
}

// Files returns copies of all file records sorted by path
func (ix *Indexer) Files() []*types.FileRecord {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*types.FileRecord, 0, len(ix.idx.Files))
	for _, f := range ix.idx.Files {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Stats summarizes the current index
func (ix *Indexer) Stats() Summary {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := Summary{
		Root:      ix.idx.Root,
		Files:     len(ix.idx.Files),
		Methods:   len(ix.idx.Methods),
		Classes:   len(ix.idx.Classes),
		Generated: ix.idx.Generated,
		Languages: make(map[string]int),
	}
	for _, f := range ix.idx.Files {
		s.Languages[f.Language]++
	}
	return s
}

// AbsPath resolves a relative index path against the project root
func (ix *Indexer) AbsPath(rel string) string {
	return pathutil.FromKey(rel, ix.cfg.Project.Root)
}

// Root is the project root
func (ix *Indexer) Root() string {
	return ix.cfg.Project.Root
}

// Config is the configuration the indexer was built with
func (ix *Indexer) Config() *config.Config {
	return ix.cfg
}

// Parser is the structural parser shared with snapshot and reinjection
func (ix *Indexer) Parser() *parser.Parser {
	return ix.parser
}

// Roles exposes the naming-convention rules used for role inference
func (ix *Indexer) Roles() *RoleInferer {
	return ix.roles
}

func (s *IndexStats) String() string {
	return fmt.Sprintf("updated=%d skipped=%d errors=%d deleted=%d methods=%d classes=%d (%s)",
		s.Updated, s.Skipped, s.Errors, s.Deleted, s.Methods, s.Classes, s.Duration.Round(time.Millisecond))
}
