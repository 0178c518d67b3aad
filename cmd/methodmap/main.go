package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/methodmap/internal/annotations"
	"github.com/standardbeagle/methodmap/internal/config"
	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/internal/indexing"
	"github.com/standardbeagle/methodmap/internal/search"
	"github.com/standardbeagle/methodmap/internal/version"
)

// workspace is the loaded state every command works against
type workspace struct {
	cfg   *config.Config
	ix    *indexing.Indexer
	cache *annotations.Cache
}

func (w *workspace) engine() *search.Engine {
	return search.NewEngine(w.ix, w.cache, w.cfg.Search, w.cfg.Expand)
}

// loadConfig resolves the project root from --root and applies CLI overrides
func loadConfig(c *cli.Context) (*config.Config, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", c.String("root"), err)
	}
	if !c.IsSet("root") {
		// no explicit root: walk up to the nearest config or project marker
		if detected, marker, err := indexing.FindProjectRoot(root); err == nil {
			debug.LogIndexing("project root %s (found %s)", detected, marker)
			root = detected
		}
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for %s: %w", root, err)
	}

	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if exclude := c.StringSlice("exclude-path"); len(exclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, exclude...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openWorkspace loads config, the persisted index and the annotation cache.
// With refresh set the index is brought up to date before returning.
func openWorkspace(c *cli.Context, refresh bool) (*workspace, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	ix := indexing.NewIndexer(cfg, nil)
	if err := ix.Load(); err != nil {
		return nil, err
	}
	if refresh {
		stats, err := ix.IndexAll(c.Context, false)
		if err != nil {
			return nil, fmt.Errorf("index refresh failed: %w", err)
		}
		debug.LogIndexing("refresh: %s", stats)
	}
	cache, err := annotations.Open(cfg.AnnotationPath())
	if err != nil {
		return nil, err
	}
	return &workspace{cfg: cfg, ix: ix, cache: cache}, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "methodmap",
		Usage:                  "Method-level index, relevance search and edit round trips for JS/TS/Java/PHP",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory",
				Value:   ".",
				EnvVars: []string{"METHODMAP_ROOT"},
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Only index files matching glob patterns (e.g., --include 'src/**')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude-path",
				Usage: "Skip files matching glob patterns (e.g., --exclude-path '**/fixtures/**')",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
			&cli.BoolFlag{
				Name:   "debug-log",
				Usage:  "Write debug output to a log file under the temp dir",
				Hidden: true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "Scan the project and update the method index",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Re-parse every file"},
				},
				Action: indexCommand,
			},
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Rank methods relevant to a task description",
				ArgsUsage: "<query>",
				Flags:     searchFlags(),
				Action:    searchCommand,
			},
			{
				Name:      "code",
				Usage:     "Print the current source of one method",
				ArgsUsage: "<Class.method>",
				Action:    codeCommand,
			},
			{
				Name:      "extract",
				Usage:     "Snapshot methods and write an edit artifact",
				ArgsUsage: "<keys...>",
				Flags: append(searchFlags(),
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Extract the results of this search instead of explicit keys"},
				),
				Action: extractCommand,
			},
			{
				Name:      "reinject",
				Usage:     "Write edited methods from an artifact back into their files",
				ArgsUsage: "<snapshot> <artifact>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Write even if files changed since the snapshot"},
					&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Report what would change without writing"},
					&cli.BoolFlag{Name: "no-backup", Usage: "Do not write .backup copies"},
				},
				Action: reinjectCommand,
			},
			{
				Name:  "annotate",
				Usage: "Inspect and fill in method annotations",
				Subcommands: []*cli.Command{
					{
						Name:      "check",
						Usage:     "Annotation status of a search's results",
						ArgsUsage: "<query>",
						Flags:     searchFlags(),
						Action:    annotateCheckCommand,
					},
					{
						Name:      "pending",
						Usage:     "Results that still need annotation, with code and body hash",
						ArgsUsage: "<query>",
						Flags:     searchFlags(),
						Action:    annotatePendingCommand,
					},
					{
						Name:      "apply",
						Usage:     "Store annotations from a JSON file (array of {key, bodyHash, role, description, ...})",
						ArgsUsage: "<file>",
						Action:    annotateApplyCommand,
					},
					{
						Name:   "heuristic",
						Usage:  "Annotate every missing or outdated method from naming and code patterns",
						Action: annotateHeuristicCommand,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show index, annotation and snapshot statistics",
				Action: statusCommand,
			},
			{
				Name:   "watch",
				Usage:  "Keep the index current while files change",
				Action: watchCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the tools over MCP stdio",
				Action: mcpCommand,
			},
			{
				Name:  "config",
				Usage: "Configuration commands",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the resolved configuration",
						Action: configShowCommand,
					},
				},
			},
			{
				Name:      "schema",
				Usage:     "Print the JSON schema of a persisted format",
				ArgsUsage: "index|annotations|snapshot",
				Action:    schemaCommand,
			},
		},
		Before: func(c *cli.Context) error {
			// .env is optional
			_ = godotenv.Load()
			if c.Bool("debug-log") {
				path, err := debug.InitDebugLogFile()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.ErrWriter, "debug log: %s\n", path)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
	}
}

func main() {
	app := newApp()
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
