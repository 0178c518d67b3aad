package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// tomlConfig mirrors Config with pointer fields so that absent keys keep their defaults
type tomlConfig struct {
	Project struct {
		Root *string `toml:"root"`
		Name *string `toml:"name"`
	} `toml:"project"`
	Index struct {
		Extensions       []string `toml:"extensions"`
		MaxFileSize      *string  `toml:"max_file_size"`
		FollowSymlinks   *bool    `toml:"follow_symlinks"`
		RespectGitignore *bool    `toml:"respect_gitignore"`
		ParallelWorkers  *int     `toml:"parallel_workers"`
		CheckpointEvery  *int     `toml:"checkpoint_every"`
		DocLookback      *int     `toml:"doc_lookback"`
		WatchDebounceMs  *int     `toml:"watch_debounce_ms"`
	} `toml:"index"`
	Storage struct {
		DataDir *string `toml:"data_dir"`
	} `toml:"storage"`
	Search struct {
		MaxMethods       *int     `toml:"max_methods"`
		MinScore         *int     `toml:"min_score"`
		IncludePrivate   *bool    `toml:"include_private"`
		IncludeRoles     []string `toml:"include_roles"`
		ExcludeRoles     []string `toml:"exclude_roles"`
		StemDescriptions *bool    `toml:"stem_descriptions"`
	} `toml:"search"`
	Expand struct {
		Factory         *string  `toml:"factory"`
		CreatorSuffixes []string `toml:"creator_suffixes"`
	} `toml:"expand"`
	Roles struct {
		Rules []struct {
			Pattern string `toml:"pattern"`
			Role    string `toml:"role"`
		} `toml:"rules"`
	} `toml:"roles"`
	Reinject struct {
		BackupSuffix       *string `toml:"backup_suffix"`
		VerifySyntax       *bool   `toml:"verify_syntax"`
		MaxDiagnosticChars *int    `toml:"max_diagnostic_chars"`
		WindowSlack        *int    `toml:"window_slack"`
	} `toml:"reinject"`
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// LoadTOML loads .methodmap.toml from projectRoot on top of the defaults.
// A missing file returns (nil, nil).
func LoadTOML(projectRoot string) (*Config, error) {
	tomlPath := filepath.Join(projectRoot, TOMLFileName)
	content, err := os.ReadFile(tomlPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", TOMLFileName, err)
	}

	cfg, err := parseTOML(content, projectRoot)
	if err != nil {
		return nil, err
	}
	cfg.Source = tomlPath
	resolveRoot(cfg, projectRoot)
	return cfg, nil
}

func parseTOML(content []byte, defaultRoot string) (*Config, error) {
	var raw tomlConfig
	if err := toml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	cfg := Default(defaultRoot)
	cfg.Project.Root = ""

	setString(&cfg.Project.Root, raw.Project.Root)
	setString(&cfg.Project.Name, raw.Project.Name)

	if len(raw.Index.Extensions) > 0 {
		cfg.Index.Extensions = normalizeExtensions(raw.Index.Extensions)
	}
	if raw.Index.MaxFileSize != nil {
		sz, err := parseSize(*raw.Index.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("invalid index.max_file_size %q: %w", *raw.Index.MaxFileSize, err)
		}
		cfg.Index.MaxFileSize = sz
	}
	setBool(&cfg.Index.FollowSymlinks, raw.Index.FollowSymlinks)
	setBool(&cfg.Index.RespectGitignore, raw.Index.RespectGitignore)
	setInt(&cfg.Index.ParallelWorkers, raw.Index.ParallelWorkers)
	setInt(&cfg.Index.CheckpointEvery, raw.Index.CheckpointEvery)
	setInt(&cfg.Index.DocLookback, raw.Index.DocLookback)
	setInt(&cfg.Index.WatchDebounceMs, raw.Index.WatchDebounceMs)

	setString(&cfg.Storage.DataDir, raw.Storage.DataDir)

	setInt(&cfg.Search.MaxMethods, raw.Search.MaxMethods)
	setInt(&cfg.Search.MinScore, raw.Search.MinScore)
	setBool(&cfg.Search.IncludePrivate, raw.Search.IncludePrivate)
	if raw.Search.IncludeRoles != nil {
		cfg.Search.IncludeRoles = raw.Search.IncludeRoles
	}
	if raw.Search.ExcludeRoles != nil {
		cfg.Search.ExcludeRoles = raw.Search.ExcludeRoles
	}
	setBool(&cfg.Search.StemDescriptions, raw.Search.StemDescriptions)

	setString(&cfg.Expand.FactoryToken, raw.Expand.Factory)
	if raw.Expand.CreatorSuffixes != nil {
		cfg.Expand.CreatorSuffixes = raw.Expand.CreatorSuffixes
	}

	if len(raw.Roles.Rules) > 0 {
		cfg.Roles.Rules = make([]RoleRule, 0, len(raw.Roles.Rules))
		for _, r := range raw.Roles.Rules {
			cfg.Roles.Rules = append(cfg.Roles.Rules, RoleRule{Pattern: r.Pattern, Role: r.Role})
		}
	}

	setString(&cfg.Reinject.BackupSuffix, raw.Reinject.BackupSuffix)
	setBool(&cfg.Reinject.VerifySyntax, raw.Reinject.VerifySyntax)
	setInt(&cfg.Reinject.MaxDiagnosticChars, raw.Reinject.MaxDiagnosticChars)
	setInt(&cfg.Reinject.WindowSlack, raw.Reinject.WindowSlack)

	cfg.Include = append(cfg.Include, raw.Include...)
	if raw.Exclude != nil {
		cfg.Exclude = raw.Exclude
	}
	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
