package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/standardbeagle/methodmap/internal/types"
)

// Config file names looked up in the project root, in order
const (
	KDLFileName  = ".methodmap.kdl"
	TOMLFileName = ".methodmap.toml"
)

// Scoring constants for relevance search. They are fixed by the ranking contract;
// only thresholds and limits are configurable.
const (
	ScoreExplicitReference = 50
	ScoreExactMethodName   = 20
	ScorePartialMethodName = 3
	ScoreExactClassName    = 10
	ScoreDescriptionHit    = 3
	ScoreConsumerHit       = 2
	ScoreEffectTargetHit   = 2
	ScoreRoleEntry         = 2
	ScoreRoleCore          = 1

	DefaultMaxMethods = 10
	DefaultMinScore   = 3
	RetryMinScoreStep = 2
	RetryMinScore     = 1
)

type Config struct {
	Version  int
	Project  Project
	Index    Index
	Storage  Storage
	Search   Search
	Expand   Expand
	Roles    Roles
	Reinject Reinject
	Include  []string
	Exclude  []string

	// Source is the config file that was loaded, empty for built-in defaults
	Source string
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	Extensions       []string // extension allow-list, with leading dot
	MaxFileSize      int64
	FollowSymlinks   bool
	RespectGitignore bool
	ParallelWorkers  int // 0 = NumCPU
	CheckpointEvery  int // files per batch between index saves, 0 = only at end of pass
	DocLookback      int // bytes searched before a declaration for its doc block
	WatchDebounceMs  int
}

type Storage struct {
	DataDir string // relative to the project root unless absolute
}

type Search struct {
	MaxMethods       int
	MinScore         int
	IncludePrivate   bool
	IncludeRoles     []string
	ExcludeRoles     []string
	StemDescriptions bool // fall back to porter2 stems when a description token misses
}

type Expand struct {
	FactoryToken    string   // bare method name treated as a class factory
	CreatorSuffixes []string // additional creator method names (new, create, init)
}

// RoleRule maps a method-name pattern to a role
type RoleRule struct {
	Pattern string
	Role    string
}

type Roles struct {
	// Rules are tried in order; the first match wins. Private methods
	// fall back to internal when no rule matches.
	Rules []RoleRule
}

type Reinject struct {
	BackupSuffix       string
	VerifySyntax       bool
	MaxDiagnosticChars int
	WindowSlack        int // extra/missing lines tolerated by the normalized window scan
}

// Default returns the built-in configuration rooted at root
func Default(root string) *Config {
	if root == "" {
		if cwd, err := os.Getwd(); err == nil {
			root = cwd
		} else {
			root = "."
		}
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &Config{
		Version: 1,
		Project: Project{
			Root: root,
			Name: filepath.Base(root),
		},
		Index: Index{
			Extensions:       []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".java", ".php"},
			MaxFileSize:      types.DefaultMaxFileSize,
			FollowSymlinks:   false,
			RespectGitignore: true,
			ParallelWorkers:  0,
			CheckpointEvery:  types.DefaultCheckpointEvery,
			DocLookback:      types.DefaultDocLookback,
			WatchDebounceMs:  300,
		},
		Storage: Storage{
			DataDir: ".methodmap",
		},
		Search: Search{
			MaxMethods:       DefaultMaxMethods,
			MinScore:         DefaultMinScore,
			IncludePrivate:   false,
			ExcludeRoles:     []string{string(types.RoleInternal)},
			StemDescriptions: true,
		},
		Expand: Expand{
			FactoryToken:    "nova",
			CreatorSuffixes: []string{"new", "create", "init"},
		},
		Roles: Roles{
			Rules: DefaultRoleRules(),
		},
		Reinject: Reinject{
			BackupSuffix:       ".backup",
			VerifySyntax:       true,
			MaxDiagnosticChars: 4000,
			WindowSlack:        2,
		},
		Include: []string{},
		Exclude: getDefaultExclusions(),
	}
}

// DefaultRoleRules is the ordered naming-convention list. The factory rule is
// expanded from Expand.FactoryToken at inference time.
func DefaultRoleRules() []RoleRule {
	return []RoleRule{
		{Pattern: `^init`, Role: string(types.RoleEntry)},
		{Pattern: FactoryPlaceholder, Role: string(types.RoleHelper)},
		{Pattern: `^(get|find)`, Role: string(types.RoleService)},
		{Pattern: `^(handle|on[A-Z])`, Role: string(types.RoleFlow)},
		{Pattern: `^(to|from)[A-Z]`, Role: string(types.RoleAdapter)},
		{Pattern: `^[#_]`, Role: string(types.RoleInternal)},
	}
}

// FactoryPlaceholder in a role rule is replaced by the anchored factory token
const FactoryPlaceholder = "{factory}"

func getDefaultExclusions() []string {
	return []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/bower_components/**",
		"**/vendor/**",
		"**/dist/**",
		"**/build/**",
		"**/coverage/**",
		"**/*.min.js",
		"**/*.bundle.js",
		"**/*.backup",
	}
}

// Load resolves configuration for a project root: .methodmap.kdl first,
// then .methodmap.toml, then built-in defaults.
func Load(root string) (*Config, error) {
	base := Default(root)
	root = base.Project.Root

	var cfg *Config
	var err error
	switch {
	case fileExists(filepath.Join(root, KDLFileName)):
		cfg, err = LoadKDL(root)
	case fileExists(filepath.Join(root, TOMLFileName)):
		cfg, err = LoadTOML(root)
	default:
		cfg = base
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DataDir returns the absolute data directory
func (c *Config) DataDir() string {
	if filepath.IsAbs(c.Storage.DataDir) {
		return c.Storage.DataDir
	}
	return filepath.Join(c.Project.Root, c.Storage.DataDir)
}

// IndexPath is where the persisted index lives
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir(), "index.json")
}

// AnnotationPath is where the annotation cache lives
func (c *Config) AnnotationPath() string {
	return filepath.Join(c.DataDir(), "annotations.json")
}

// SnapshotDir holds snapshot documents and their edit artifacts
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.DataDir(), "snapshots")
}

// Workers resolves the parallel worker count
func (c *Config) Workers() int {
	if c.Index.ParallelWorkers > 0 {
		return c.Index.ParallelWorkers
	}
	return runtime.NumCPU()
}

// HasExtension reports whether ext is on the allow-list
func (c *Config) HasExtension(ext string) bool {
	for _, e := range c.Index.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (c *Config) String() string {
	return fmt.Sprintf("root=%s data=%s extensions=%v", c.Project.Root, c.DataDir(), c.Index.Extensions)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
