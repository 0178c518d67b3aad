package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/reinject"
	"github.com/standardbeagle/methodmap/internal/snapshot"
)

func extractCommand(c *cli.Context) error {
	w, err := openWorkspace(c, true)
	if err != nil {
		return err
	}

	keys := c.Args().Slice()
	scores := make(map[string]int)
	if q := c.String("query"); q != "" {
		sess, err := runSession(c, w, q)
		if err != nil {
			return err
		}
		for _, r := range sess.Results() {
			scores[r.Key] = r.Score
			keys = append(keys, r.Key)
		}
	}
	if len(keys) == 0 {
		return errors.New("nothing to extract: pass method keys or --query")
	}

	res, err := snapshot.Extract(w.ix, w.cfg.SnapshotDir(), keys, scores)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, res)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Extracted %d methods\n", len(res.Keys))
	for _, k := range res.Keys {
		fmt.Fprintf(out, "  %s\n", k)
	}
	if len(res.Missing) > 0 {
		fmt.Fprintf(out, "Not found: %s\n", strings.Join(res.Missing, ", "))
	}
	fmt.Fprintf(out, "Snapshot: %s\nArtifact: %s\n", res.SnapshotPath, res.ArtifactPath)
	fmt.Fprintf(out, "Edit the code between the markers, then run:\n  methodmap reinject %s %s\n", res.SnapshotPath, res.ArtifactPath)
	return nil
}

func reinjectCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: methodmap reinject <snapshot> <artifact>")
	}
	w, err := openWorkspace(c, false)
	if err != nil {
		return err
	}

	r := reinject.New(w.cfg.Reinject, w.ix.Parser())
	res, err := r.Reinject(c.Args().Get(0), c.Args().Get(1), reinject.Options{
		Force:    c.Bool("force"),
		DryRun:   c.Bool("dry-run"),
		NoBackup: c.Bool("no-backup"),
	})
	var ie *mmerrors.IntegrityError
	if errors.As(err, &ie) {
		for _, f := range ie.Files {
			state := "changed"
			if f.Missing {
				state = "missing"
			}
			fmt.Fprintf(c.App.ErrWriter, "  %s: %s\n", f.Path, state)
		}
		return fmt.Errorf("%w (re-run extract, or pass --force)", err)
	}
	if err != nil {
		return err
	}

	if !res.DryRun && len(res.Files) > 0 {
		for _, rel := range res.Files {
			if _, err := w.ix.IndexFile(c.Context, rel); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "warning: re-index %s: %v\n", rel, err)
			}
		}
		if err := w.ix.Save(); err != nil {
			return err
		}
	}

	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, res); err != nil {
			return err
		}
	} else {
		printReinjectResult(c, res)
	}
	if !res.Success {
		return fmt.Errorf("%d of %d methods could not be reinjected", res.FailedCount, res.FailedCount+res.SuccessCount)
	}
	return nil
}

func printReinjectResult(c *cli.Context, res *reinject.Result) {
	out := c.App.Writer
	verb := "Replaced"
	if res.DryRun {
		verb = "Would replace"
	}
	fmt.Fprintf(out, "%s %d methods, %d unchanged, %d failed\n", verb, res.SuccessCount, res.UnchangedCount, res.FailedCount)

	keys := make([]string, 0, len(res.Diffs))
	for k := range res.Diffs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "\n%s", res.Diffs[k])
	}

	for _, f := range res.Failed {
		fmt.Fprintf(out, "FAILED %s (%s): %s", f.Key, f.File, f.Reason)
		if f.BestLine > 0 {
			fmt.Fprintf(out, " [closest match line %d, %.0f%% similar]", f.BestLine, f.Similarity*100)
		}
		fmt.Fprintln(out)
	}
	for _, d := range res.Drifted {
		fmt.Fprintf(out, "forced past changed file %s\n", d.Path)
	}
	if len(res.Absent) > 0 {
		fmt.Fprintf(out, "Not in artifact (left alone): %s\n", strings.Join(res.Absent, ", "))
	}
	if len(res.Unknown) > 0 {
		fmt.Fprintf(out, "Not in snapshot (ignored): %s\n", strings.Join(res.Unknown, ", "))
	}
	for _, b := range res.Backups {
		fmt.Fprintf(out, "backup: %s\n", b)
	}
}
