package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/methodmap/internal/annotations"
	"github.com/standardbeagle/methodmap/internal/search"
)

func annotateCheckCommand(c *cli.Context) error {
	w, err := openWorkspace(c, true)
	if err != nil {
		return err
	}
	sess, err := runSession(c, w, strings.Join(c.Args().Slice(), " "))
	if err != nil {
		return err
	}
	checks := sess.CheckAnnotations()
	if c.Bool("json") {
		return writeJSON(c.App.Writer, checks)
	}
	for _, ch := range checks {
		fmt.Fprintf(c.App.Writer, "%-9s %s\n", ch.Status, ch.Key)
	}
	return nil
}

func annotatePendingCommand(c *cli.Context) error {
	w, err := openWorkspace(c, true)
	if err != nil {
		return err
	}
	sess, err := runSession(c, w, strings.Join(c.Args().Slice(), " "))
	if err != nil {
		return err
	}
	pending := sess.MethodsNeedingAnnotation()
	if c.Bool("json") {
		return writeJSON(c.App.Writer, pending)
	}
	if len(pending) == 0 {
		fmt.Fprintln(c.App.Writer, "All results are annotated")
		return nil
	}
	for _, p := range pending {
		fmt.Fprintf(c.App.Writer, "%s (%s) %s bodyHash=%s\n", p.Key, p.Status, p.File, p.BodyHash)
	}
	return nil
}

func annotateApplyCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: methodmap annotate apply <file>")
	}
	raw, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	var inputs []search.AnnotationInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return fmt.Errorf("parse %s: %w", c.Args().First(), err)
	}

	w, err := openWorkspace(c, true)
	if err != nil {
		return err
	}
	// inputs are validated against the index, not the session's results
	engine := w.engine()
	opts := engine.DefaultOptions()
	opts.DisableRetry = true
	res, err := search.NewSession(engine, "", opts).ApplyAnnotations(inputs)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, res)
	}
	fmt.Fprintf(c.App.Writer, "Applied %d annotations\n", len(res.Applied))
	rejected := make([]string, 0, len(res.Rejected))
	for k := range res.Rejected {
		rejected = append(rejected, k)
	}
	sort.Strings(rejected)
	for _, k := range rejected {
		fmt.Fprintf(c.App.Writer, "rejected %s: %s\n", k, res.Rejected[k])
	}
	return nil
}

func annotateHeuristicCommand(c *cli.Context) error {
	w, err := openWorkspace(c, true)
	if err != nil {
		return err
	}
	h := annotations.NewHeuristic(w.ix.Roles().Infer)
	code := func(key string) (string, string, bool) {
		src, ok := w.ix.ExtractMethod(key)
		if !ok {
			return "", "", false
		}
		return src.Code, src.BodyHash, true
	}
	written, err := annotations.Backfill(w.cache, h, w.ix.Methods(), code)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, map[string]interface{}{"annotated": written})
	}
	fmt.Fprintf(c.App.Writer, "Annotated %d methods heuristically\n", len(written))
	return nil
}
