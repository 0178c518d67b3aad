package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/methodmap/internal/search"
	"github.com/standardbeagle/methodmap/internal/types"
)

func searchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "max", Aliases: []string{"m"}, Usage: "Maximum results (0 = config default)"},
		&cli.IntFlag{Name: "min-score", Usage: "Minimum score to keep a method (0 = config default)"},
		&cli.BoolFlag{Name: "include-private", Aliases: []string{"p"}, Usage: "Include private methods"},
		&cli.StringSliceFlag{Name: "include-roles", Usage: "Only these roles"},
		&cli.StringSliceFlag{Name: "exclude-roles", Usage: "Drop these roles (pass 'none' to disable the default exclusion)"},
		&cli.IntFlag{Name: "level", Aliases: []string{"l"}, Usage: "Detail level 0-4: keys, role+description, signatures, code, whole files", Value: search.DefaultDetailLevel},
		&cli.StringSliceFlag{Name: "exclude", Aliases: []string{"x"}, Usage: "Remove these keys from the results"},
		&cli.StringSliceFlag{Name: "expand", Aliases: []string{"e"}, Usage: "Add the related methods of these keys"},
		&cli.IntFlag{Name: "depth", Usage: "Expansion depth", Value: 1},
		&cli.StringFlag{Name: "direction", Usage: "Expansion direction: callers, calls or both", Value: "both"},
	}
}

// searchOptions starts from the configured defaults and applies flags
func searchOptions(c *cli.Context, engine *search.Engine) (search.Options, error) {
	opts := engine.DefaultOptions()
	if n := c.Int("max"); n > 0 {
		opts.MaxMethods = n
	}
	if n := c.Int("min-score"); n > 0 {
		opts.MinScore = n
	}
	if c.Bool("include-private") {
		opts.IncludePrivate = true
	}
	if c.IsSet("include-roles") {
		roles, err := parseRoleFlags(c.StringSlice("include-roles"))
		if err != nil {
			return opts, err
		}
		opts.IncludeRoles = roles
	}
	if c.IsSet("exclude-roles") {
		roles, err := parseRoleFlags(c.StringSlice("exclude-roles"))
		if err != nil {
			return opts, err
		}
		opts.ExcludeRoles = roles
	}
	return opts, nil
}

// parseRoleFlags accepts comma separated or repeated role names; "none"
// yields an empty, non-nil list
func parseRoleFlags(values []string) ([]types.Role, error) {
	roles := []types.Role{}
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" || name == "none" {
				continue
			}
			r, ok := types.ParseRole(name)
			if !ok {
				return nil, fmt.Errorf("unknown role %q", name)
			}
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// runSession opens a session for the query and applies --exclude and --expand
func runSession(c *cli.Context, w *workspace, query string) (*search.Session, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("a query is required")
	}
	engine := w.engine()
	opts, err := searchOptions(c, engine)
	if err != nil {
		return nil, err
	}
	sess := search.NewSession(engine, query, opts)

	if keys := c.StringSlice("exclude"); len(keys) > 0 {
		sess.Exclude(keys...)
	}
	if keys := c.StringSlice("expand"); len(keys) > 0 {
		dir, err := search.ParseDirection(c.String("direction"))
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			sess.Expand(k, search.ExpandOptions{Depth: c.Int("depth"), Direction: dir})
		}
	}
	return sess, nil
}

func searchCommand(c *cli.Context) error {
	w, err := openWorkspace(c, true)
	if err != nil {
		return err
	}
	sess, err := runSession(c, w, strings.Join(c.Args().Slice(), " "))
	if err != nil {
		return err
	}
	view, err := sess.GetAtLevel(c.Int("level"))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, view)
	}
	printLevelView(c.App.Writer, view)
	return nil
}

func printLevelView(out io.Writer, view *search.LevelView) {
	if len(view.Methods) == 0 {
		fmt.Fprintf(out, "No methods matched %q\n", view.Query)
		return
	}
	fmt.Fprintf(out, "%d methods for %q (level %d)\n\n", len(view.Methods), view.Query, view.Level)
	for _, m := range view.Methods {
		marker := ""
		switch {
		case m.Expanded:
			marker = " (expanded)"
		case m.Fallback:
			marker = " (fallback)"
		}
		fmt.Fprintf(out, "%4d  %s%s\n", m.Score, m.Key, marker)
		if m.Role != "" || m.Description != "" {
			fmt.Fprintf(out, "      [%s] %s\n", m.Role, m.Description)
		}
		if m.Signature != "" {
			fmt.Fprintf(out, "      %s  %s:%d-%d\n", m.Signature, m.File, m.StartLine, m.EndLine)
		}
		if len(m.Effects) > 0 {
			for _, kind := range m.Effects.Kinds() {
				fmt.Fprintf(out, "      %s: %s\n", kind, strings.Join(m.Effects[kind], ", "))
			}
		}
		if m.Code != "" {
			fmt.Fprintf(out, "\n%s\n\n", m.Code)
		}
	}
	for _, f := range view.Files {
		fmt.Fprintf(out, "\n==> %s (%s)\n%s\n", f.Path, strings.Join(f.Keys, ", "), f.Content)
	}
	if view.EstimatedTokens > 0 {
		fmt.Fprintf(out, "\n~%d tokens\n", view.EstimatedTokens)
	}
}

func codeCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: methodmap code <Class.method>")
	}
	w, err := openWorkspace(c, true)
	if err != nil {
		return err
	}
	src, ok := w.ix.ExtractMethod(c.Args().First())
	if !ok {
		return fmt.Errorf("method %q not found", c.Args().First())
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, src)
	}
	fmt.Fprintf(c.App.Writer, "// %s:%d-%d\n%s\n", src.File, src.StartLine, src.EndLine, src.Code)
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
