// Package reinject writes edited methods from an edit artifact back into the
// files they were extracted from.
//
// Each modified method is located in its file by exact text first, then by a
// normalized line window. A method that cannot be located fails on its own
// with a similarity diagnostic; it is never replaced on a fuzzy match. Files
// whose content changed since the snapshot are refused unless forced.
package reinject

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/methodmap/internal/config"
	"github.com/standardbeagle/methodmap/internal/debug"
	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/parser"
	"github.com/standardbeagle/methodmap/internal/snapshot"
	"github.com/standardbeagle/methodmap/internal/storage"
)

// Options control one reinjection run
type Options struct {
	Force    bool // write even when files changed since the snapshot
	DryRun   bool // compute replacements and diffs without writing
	NoBackup bool
}

// Failure is one method that could not be written back
type Failure struct {
	Key        string  `json:"key"`
	File       string  `json:"file"`
	Reason     string  `json:"reason"`
	Similarity float64 `json:"similarity,omitempty"`
	BestLine   int     `json:"bestLine,omitempty"`
}

// Result summarizes a run. Some keys failing while others succeed is a normal outcome.
type Result struct {
	Success        bool      `json:"success"`
	SuccessCount   int       `json:"successCount"`
	FailedCount    int       `json:"failedCount"`
	UnchangedCount int       `json:"unchangedCount"`
	Failed         []Failure `json:"failed,omitempty"`
	Modified       []string  `json:"modified,omitempty"`
	Unchanged      []string  `json:"unchanged,omitempty"`
	// Absent keys are in the snapshot but missing from the artifact
	Absent []string `json:"absent,omitempty"`
	// Unknown keys are in the artifact but not in the snapshot
	Unknown []string          `json:"unknown,omitempty"`
	Files   []string          `json:"files,omitempty"`
	Backups []string          `json:"backups,omitempty"`
	Diffs   map[string]string `json:"diffs,omitempty"`
	// Drifted lists files that changed since the snapshot and were processed under Force
	Drifted []mmerrors.FileMismatch `json:"drifted,omitempty"`
	DryRun  bool                    `json:"dryRun,omitempty"`
}

// Reinjector applies edit artifacts against their snapshots
type Reinjector struct {
	cfg    config.Reinject
	parser *parser.Parser
}

// New creates a reinjector. p parses marker-less artifacts and runs the
// syntax guard; without it both are skipped.
func New(cfg config.Reinject, p *parser.Parser) *Reinjector {
	return &Reinjector{cfg: cfg, parser: p}
}

// edit is one modified method waiting to be written
type edit struct {
	key    string
	method *snapshot.Method
	code   string
}

// Reinject loads the snapshot at snapshotPath, parses the artifact at
// artifactPath and writes every modified method back into its file.
// A *errors.IntegrityError is returned, with nothing written, when a file
// changed since the snapshot and opts.Force is not set.
func (r *Reinjector) Reinject(snapshotPath, artifactPath string, opts Options) (*Result, error) {
	snap, err := snapshot.Load(snapshotPath)
	if err != nil {
		return nil, err
	}

	drifted, err := checkIntegrity(snap)
	if err != nil {
		return nil, err
	}
	if len(drifted) > 0 && !opts.Force {
		return nil, mmerrors.NewIntegrityError(drifted)
	}

	raw, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, mmerrors.NewFileError("read", artifactPath, err)
	}
	blocks, usedMarkers, err := snapshot.ParseArtifact(string(raw), filepath.Ext(artifactPath), r.parser)
	if err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", artifactPath, err)
	}
	debug.LogReinject("artifact %s: %d blocks (markers=%v)", artifactPath, len(blocks), usedMarkers)

	res := &Result{
		Diffs:   make(map[string]string),
		Drifted: drifted,
		DryRun:  opts.DryRun,
	}

	byFile := make(map[string][]edit)
	for _, key := range snap.OrderedKeys() {
		m := snap.Methods[key]
		code, ok := blocks[key]
		if !ok {
			res.Absent = append(res.Absent, key)
			continue
		}
		code = strings.TrimRight(code, "\r\n")
		if snapshot.Normalize(code) == m.NormalizedCode {
			res.Unchanged = append(res.Unchanged, key)
			continue
		}
		byFile[m.File] = append(byFile[m.File], edit{key: key, method: m, code: code})
	}
	for key := range blocks {
		if _, ok := snap.Methods[key]; !ok {
			res.Unknown = append(res.Unknown, key)
		}
	}
	sort.Strings(res.Unknown)

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, rel := range files {
		r.applyFile(snap, rel, byFile[rel], opts, res)
	}

	res.UnchangedCount = len(res.Unchanged)
	res.SuccessCount = len(res.Modified)
	res.FailedCount = len(res.Failed)
	res.Success = res.FailedCount == 0
	sort.Strings(res.Modified)

	debug.LogReinject("reinjected %s: %d modified, %d failed, %d unchanged",
		snapshotPath, res.SuccessCount, res.FailedCount, res.UnchangedCount)
	return res, nil
}

// checkIntegrity compares each file's current hash with the recorded one
func checkIntegrity(snap *snapshot.Snapshot) ([]mmerrors.FileMismatch, error) {
	rels := make([]string, 0, len(snap.Files))
	for rel := range snap.Files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	var drifted []mmerrors.FileMismatch
	for _, rel := range rels {
		f := snap.Files[rel]
		hash, err := storage.HashFile(f.AbsolutePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			drifted = append(drifted, mmerrors.FileMismatch{Path: rel, ExpectedHash: f.OriginalFileHash, Missing: true})
		case err != nil:
			return nil, mmerrors.NewFileError("hash", f.AbsolutePath, err)
		case hash != f.OriginalFileHash:
			drifted = append(drifted, mmerrors.FileMismatch{Path: rel, ExpectedHash: f.OriginalFileHash, ActualHash: hash})
		}
	}
	return drifted, nil
}

// applyFile replaces every edit in one file and writes it once. Edits run
// bottom-up so earlier replacements do not shift later ones.
func (r *Reinjector) applyFile(snap *snapshot.Snapshot, rel string, edits []edit, opts Options, res *Result) {
	f := snap.Files[rel]
	if f == nil {
		for _, e := range edits {
			res.fail(mmerrors.NewReconcileError(e.key, rel, "file is not recorded in the snapshot"))
		}
		return
	}

	raw, err := os.ReadFile(f.AbsolutePath)
	if err != nil {
		reason := "cannot read file: " + err.Error()
		if errors.Is(err, os.ErrNotExist) {
			reason = "file no longer exists"
		}
		for _, e := range edits {
			res.fail(mmerrors.NewReconcileError(e.key, rel, reason))
		}
		return
	}
	content := string(raw)

	sort.SliceStable(edits, func(i, j int) bool { return edits[i].method.Line > edits[j].method.Line })

	var applied []edit
	for _, e := range edits {
		sp, ok := locateExact(content, e.method.Code, e.method.Line)
		if !ok {
			lw := splitLines(content)
			n := len(splitLines(e.method.Code).lines)
			sp, ok = locateWindow(lw, e.method.NormalizedCode, n, r.cfg.WindowSlack, e.method.Line)
			if !ok {
				sim, line := diagnose(lw, e.method.Code, e.method.Name, e.method.Line, r.cfg.MaxDiagnosticChars)
				res.fail(mmerrors.NewReconcileError(e.key, rel, "original code not found in file").WithSimilarity(sim, line))
				continue
			}
			debug.LogReinject("%s located by normalized window at line %d", e.key, sp.line)
		}
		content = content[:sp.start] + sp.indent + e.code + sp.newline + content[sp.end:]
		applied = append(applied, e)
	}
	if len(applied) == 0 {
		return
	}

	if r.cfg.VerifySyntax && r.parser != nil && r.parser.Supports(rel) {
		before, errBefore := r.parser.HasSyntaxErrors(rel, raw)
		after, errAfter := r.parser.HasSyntaxErrors(rel, []byte(content))
		if errBefore == nil && errAfter == nil && !before && after {
			for _, e := range applied {
				res.fail(mmerrors.NewReconcileError(e.key, rel, "edited code introduces syntax errors; file left untouched"))
			}
			return
		}
	}

	if !opts.DryRun {
		if !opts.NoBackup {
			backup := f.AbsolutePath + r.cfg.BackupSuffix
			if err := storage.CopyFile(f.AbsolutePath, backup); err != nil {
				for _, e := range applied {
					res.fail(mmerrors.NewReconcileError(e.key, rel, "cannot write backup: "+err.Error()))
				}
				return
			}
			res.Backups = append(res.Backups, backup)
		}
		if err := storage.WriteFileAtomic(f.AbsolutePath, []byte(content), 0o644); err != nil {
			for _, e := range applied {
				res.fail(mmerrors.NewReconcileError(e.key, rel, "cannot write file: "+err.Error()))
			}
			return
		}
	}

	res.Files = append(res.Files, rel)
	for _, e := range applied {
		res.Modified = append(res.Modified, e.key)
		res.Diffs[e.key] = methodDiff(rel, e.key, e.method.Code, e.code)
	}
}

func (res *Result) fail(err *mmerrors.ReconcileError) {
	debug.LogReinject("%v", err)
	res.Failed = append(res.Failed, Failure{
		Key:        err.Key,
		File:       err.FilePath,
		Reason:     err.Reason,
		Similarity: err.Similarity,
		BestLine:   err.BestLine,
	})
}
