package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL loads .methodmap.kdl from projectRoot on top of the defaults.
// A missing file returns (nil, nil).
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, KDLFileName)
	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KDLFileName, err)
	}

	cfg, err := parseKDL(string(content), projectRoot)
	if err != nil {
		return nil, err
	}
	cfg.Source = kdlPath
	resolveRoot(cfg, projectRoot)
	return cfg, nil
}

// resolveRoot makes a configured root absolute, relative to the config file's directory
func resolveRoot(cfg *Config, configDir string) {
	if cfg.Project.Root == "" {
		cfg.Project.Root = configDir
	} else if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Join(configDir, cfg.Project.Root)
	}
	if abs, err := filepath.Abs(cfg.Project.Root); err == nil {
		cfg.Project.Root = abs
	}
	cfg.Project.Root = filepath.Clean(cfg.Project.Root)
}

func parseKDL(content, defaultRoot string) (*Config, error) {
	cfg := Default(defaultRoot)
	cfg.Project.Root = ""

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			parseIndexNode(cfg, n)
		case "storage":
			for _, cn := range n.Children {
				assignSimpleString(cn, "data_dir", func(v string) { cfg.Storage.DataDir = v })
			}
		case "search":
			parseSearchNode(cfg, n)
		case "expand":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "factory":
					if s, ok := firstStringArg(cn); ok {
						cfg.Expand.FactoryToken = s
					}
				case "creator_suffixes":
					cfg.Expand.CreatorSuffixes = collectStringArgs(cn)
				}
			}
		case "roles":
			parseRolesNode(cfg, n)
		case "reinject":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "backup_suffix":
					if s, ok := firstStringArg(cn); ok {
						cfg.Reinject.BackupSuffix = s
					}
				case "verify_syntax":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Reinject.VerifySyntax = b
					}
				case "max_diagnostic_chars":
					if v, ok := firstIntArg(cn); ok {
						cfg.Reinject.MaxDiagnosticChars = v
					}
				case "window_slack":
					if v, ok := firstIntArg(cn); ok {
						cfg.Reinject.WindowSlack = v
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			// An exclude block replaces the default exclusions
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

func parseIndexNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "extensions":
			if exts := collectStringArgs(cn); len(exts) > 0 {
				cfg.Index.Extensions = normalizeExtensions(exts)
			}
		case "max_file_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxFileSize = int64(v)
			}
			if s, ok := firstStringArg(cn); ok {
				if sz, err := parseSize(s); err == nil {
					cfg.Index.MaxFileSize = sz
				}
			}
		case "follow_symlinks":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.FollowSymlinks = b
			}
		case "respect_gitignore":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.RespectGitignore = b
			}
		case "parallel_workers":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.ParallelWorkers = v
			}
		case "checkpoint_every":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.CheckpointEvery = v
			}
		case "doc_lookback":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.DocLookback = v
			}
		case "watch_debounce_ms":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.WatchDebounceMs = v
			}
		}
	}
}

func parseSearchNode(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "max_methods":
			if v, ok := firstIntArg(cn); ok {
				cfg.Search.MaxMethods = v
			}
		case "min_score":
			if v, ok := firstIntArg(cn); ok {
				cfg.Search.MinScore = v
			}
		case "include_private":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Search.IncludePrivate = b
			}
		case "include_roles":
			cfg.Search.IncludeRoles = collectStringArgs(cn)
		case "exclude_roles":
			cfg.Search.ExcludeRoles = collectStringArgs(cn)
		case "stem_descriptions":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Search.StemDescriptions = b
			}
		}
	}
}

// roles { rule "^init" "entry" } - a roles block replaces the default rules
func parseRolesNode(cfg *Config, n *document.Node) {
	var rules []RoleRule
	for _, cn := range n.Children {
		if nodeName(cn) != "rule" {
			continue
		}
		args := collectStringArgs(cn)
		if len(args) != 2 {
			log.Printf("WARNING: roles rule needs a pattern and a role, got %v", args)
			continue
		}
		rules = append(rules, RoleRule{Pattern: args[0], Role: args[1]})
	}
	if len(rules) > 0 {
		cfg.Roles.Rules = rules
	}
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// collectStringArgs reads inline arguments (exclude "a" "b") or, failing that,
// block children (exclude { "a"; "b" })
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
