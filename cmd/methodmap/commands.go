package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/methodmap/internal/annotations"
	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/indexing"
	"github.com/standardbeagle/methodmap/internal/mcp"
	"github.com/standardbeagle/methodmap/internal/snapshot"
	"github.com/standardbeagle/methodmap/internal/types"
)

func indexCommand(c *cli.Context) error {
	w, err := openWorkspace(c, false)
	if err != nil {
		return err
	}
	stats, err := w.ix.IndexAll(c.Context, c.Bool("force"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, map[string]interface{}{"stats": stats, "summary": w.ix.Stats()})
	}
	fmt.Fprintln(c.App.Writer, stats.String())
	for _, f := range stats.Failures {
		fmt.Fprintf(c.App.Writer, "  %s: %s\n", f.File, f.Error)
	}
	return nil
}

// StatusReport is the status command's JSON output
type StatusReport struct {
	Index       indexing.Summary `json:"index"`
	Annotations int              `json:"annotations"`
	Snapshots   int              `json:"snapshots"`
	ConfigFile  string           `json:"configFile,omitempty"`
	DataDir     string           `json:"dataDir"`
}

func statusCommand(c *cli.Context) error {
	w, err := openWorkspace(c, false)
	if err != nil {
		return err
	}
	snaps, _ := filepath.Glob(filepath.Join(w.cfg.SnapshotDir(), "*.json"))
	report := StatusReport{
		Index:       w.ix.Stats(),
		Annotations: w.cache.Len(),
		Snapshots:   len(snaps),
		ConfigFile:  w.cfg.Source,
		DataDir:     w.cfg.DataDir(),
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, report)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Root:        %s\n", report.Index.Root)
	fmt.Fprintf(out, "Data dir:    %s\n", report.DataDir)
	if report.ConfigFile != "" {
		fmt.Fprintf(out, "Config:      %s\n", report.ConfigFile)
	}
	if report.Index.Generated.IsZero() {
		fmt.Fprintln(out, "Index:       not built (run methodmap index)")
	} else {
		fmt.Fprintf(out, "Index:       %d files, %d classes, %d methods (updated %s)\n",
			report.Index.Files, report.Index.Classes, report.Index.Methods, report.Index.Generated.Local().Format(time.RFC3339))
	}
	langs := make([]string, 0, len(report.Index.Languages))
	for l, n := range report.Index.Languages {
		langs = append(langs, fmt.Sprintf("%s=%d", l, n))
	}
	sort.Strings(langs)
	if len(langs) > 0 {
		fmt.Fprintf(out, "Languages:   %s\n", strings.Join(langs, " "))
	}
	fmt.Fprintf(out, "Annotations: %d\n", report.Annotations)
	fmt.Fprintf(out, "Snapshots:   %d\n", report.Snapshots)
	return nil
}

func watchCommand(c *cli.Context) error {
	w, err := openWorkspace(c, true)
	if err != nil {
		return err
	}
	watcher, err := indexing.NewWatcher(w.ix)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := c.App.Writer
	watcher.OnBatch(func(b indexing.WatchBatch) {
		fmt.Fprintf(out, "%s re-indexed %d, removed %d (%s)\n",
			time.Now().Format("15:04:05"), len(b.Changed), len(b.Removed), b.Duration.Round(time.Millisecond))
		for _, e := range b.Errors {
			fmt.Fprintf(out, "  error: %v\n", e)
		}
	})
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", w.cfg.Project.Root)

	<-ctx.Done()
	return watcher.Stop()
}

func mcpCommand(c *cli.Context) error {
	// stdout carries the protocol
	debug.SetMCPMode(true)

	w, err := openWorkspace(c, true)
	if err != nil {
		return debug.Fatal("failed to open workspace: %v", err)
	}
	server, err := mcp.NewServer(w.ix, w.cache, w.cfg)
	if err != nil {
		return debug.Fatal("failed to create MCP server: %v", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		debug.LogMCP("received signal %v, shutting down", sig)
		cancel()
		select {
		case err := <-errChan:
			return err
		case <-time.After(2 * time.Second):
			// break the stdio read loop
			os.Stdin.Close()
			return nil
		}
	}
}

func configShowCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, cfg)
	}

	out := c.App.Writer
	source := cfg.Source
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Fprintf(out, "methodmap configuration from %s\n\n", source)
	fmt.Fprintf(out, "Project:  root=%s name=%s\n", cfg.Project.Root, cfg.Project.Name)
	fmt.Fprintf(out, "Index:    extensions=%s max_file_size=%.1fMB workers=%d checkpoint_every=%d gitignore=%t\n",
		strings.Join(cfg.Index.Extensions, ","), float64(cfg.Index.MaxFileSize)/(1024*1024), cfg.Workers(),
		cfg.Index.CheckpointEvery, cfg.Index.RespectGitignore)
	fmt.Fprintf(out, "Storage:  %s\n", cfg.DataDir())
	fmt.Fprintf(out, "Search:   max_methods=%d min_score=%d include_private=%t exclude_roles=%s stem=%t\n",
		cfg.Search.MaxMethods, cfg.Search.MinScore, cfg.Search.IncludePrivate,
		strings.Join(cfg.Search.ExcludeRoles, ","), cfg.Search.StemDescriptions)
	fmt.Fprintf(out, "Expand:   factory=%s creators=%s\n", cfg.Expand.FactoryToken, strings.Join(cfg.Expand.CreatorSuffixes, ","))
	fmt.Fprintf(out, "Reinject: backup_suffix=%s verify_syntax=%t max_diagnostic_chars=%d\n",
		cfg.Reinject.BackupSuffix, cfg.Reinject.VerifySyntax, cfg.Reinject.MaxDiagnosticChars)
	fmt.Fprintln(out, "Roles:")
	for _, r := range cfg.Roles.Rules {
		fmt.Fprintf(out, "  %-24s %s\n", r.Pattern, r.Role)
	}
	fmt.Fprintf(out, "Include:  %s\n", strings.Join(cfg.Include, " "))
	fmt.Fprintf(out, "Exclude:  %s\n", strings.Join(cfg.Exclude, " "))
	return nil
}

// persistedFormats maps schema names to the documents written under the data dir
var persistedFormats = map[string]interface{}{
	"index":       &types.Index{},
	"annotations": &annotations.Document{},
	"snapshot":    &snapshot.Snapshot{},
}

func schemaCommand(c *cli.Context) error {
	name := c.Args().First()
	v, ok := persistedFormats[name]
	if !ok {
		return fmt.Errorf("unknown format %q: expected index, annotations or snapshot", name)
	}
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            false,
	}
	return writeJSON(c.App.Writer, reflector.Reflect(v))
}
