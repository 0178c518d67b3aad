package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/types"
)

// Validate checks ranges, role names, patterns and globs
func (c *Config) Validate() error {
	if c.Project.Root == "" {
		return mmerrors.NewConfigError("project.root", "", errors.New("project root cannot be empty"))
	}

	if err := c.validateIndex(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateRoles(); err != nil {
		return err
	}
	if err := c.validateReinject(); err != nil {
		return err
	}

	if c.Storage.DataDir == "" {
		return mmerrors.NewConfigError("storage.data_dir", "", errors.New("data directory cannot be empty"))
	}
	if strings.TrimSpace(c.Expand.FactoryToken) == "" {
		return mmerrors.NewConfigError("expand.factory", "", errors.New("factory token cannot be empty"))
	}

	for _, pattern := range append(append([]string{}, c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return mmerrors.NewConfigError("include/exclude", pattern, errors.New("invalid glob pattern"))
		}
	}
	return nil
}

func (c *Config) validateIndex() error {
	idx := &c.Index
	if len(idx.Extensions) == 0 {
		return mmerrors.NewConfigError("index.extensions", "", errors.New("at least one extension is required"))
	}
	if idx.MaxFileSize <= 0 {
		return mmerrors.NewConfigError("index.max_file_size", strconv.FormatInt(idx.MaxFileSize, 10),
			errors.New("must be positive"))
	}
	if idx.MaxFileSize > 100*1024*1024 {
		return mmerrors.NewConfigError("index.max_file_size", strconv.FormatInt(idx.MaxFileSize, 10),
			errors.New("should not exceed 100MB"))
	}
	if idx.ParallelWorkers < 0 {
		return intConfigError("index.parallel_workers", idx.ParallelWorkers, "cannot be negative")
	}
	if idx.CheckpointEvery < 0 {
		return intConfigError("index.checkpoint_every", idx.CheckpointEvery, "cannot be negative")
	}
	if idx.DocLookback < 16 || idx.DocLookback > 16*1024 {
		return intConfigError("index.doc_lookback", idx.DocLookback, "must be between 16 and 16384")
	}
	if idx.WatchDebounceMs < 0 {
		return intConfigError("index.watch_debounce_ms", idx.WatchDebounceMs, "cannot be negative")
	}
	return nil
}

func (c *Config) validateSearch() error {
	s := &c.Search
	if s.MaxMethods <= 0 {
		return intConfigError("search.max_methods", s.MaxMethods, "must be positive")
	}
	if s.MinScore < 0 {
		return intConfigError("search.min_score", s.MinScore, "cannot be negative")
	}
	for _, r := range s.IncludeRoles {
		if _, ok := types.ParseRole(r); !ok {
			return mmerrors.NewConfigError("search.include_roles", r, errUnknownRole)
		}
	}
	for _, r := range s.ExcludeRoles {
		if _, ok := types.ParseRole(r); !ok {
			return mmerrors.NewConfigError("search.exclude_roles", r, errUnknownRole)
		}
	}
	return nil
}

var errUnknownRole = fmt.Errorf("unknown role (valid: %s)", strings.Join(roleNames(), ", "))

func roleNames() []string {
	names := make([]string, 0, len(types.AllRoles))
	for _, r := range types.AllRoles {
		names = append(names, string(r))
	}
	return names
}

func (c *Config) validateRoles() error {
	for i, rule := range c.Roles.Rules {
		field := fmt.Sprintf("roles.rule[%d]", i)
		if _, ok := types.ParseRole(rule.Role); !ok {
			return mmerrors.NewConfigError(field, rule.Role, errUnknownRole)
		}
		if rule.Pattern == FactoryPlaceholder {
			continue
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return mmerrors.NewConfigError(field, rule.Pattern, err)
		}
	}
	return nil
}

func (c *Config) validateReinject() error {
	r := &c.Reinject
	if r.BackupSuffix == "" || strings.ContainsAny(r.BackupSuffix, `/\`) {
		return mmerrors.NewConfigError("reinject.backup_suffix", r.BackupSuffix,
			errors.New("must be a non-empty file suffix"))
	}
	if r.MaxDiagnosticChars <= 0 {
		return intConfigError("reinject.max_diagnostic_chars", r.MaxDiagnosticChars, "must be positive")
	}
	if r.WindowSlack < 0 || r.WindowSlack > 20 {
		return intConfigError("reinject.window_slack", r.WindowSlack, "must be between 0 and 20")
	}
	return nil
}

func intConfigError(field string, v int, msg string) error {
	return mmerrors.NewConfigError(field, strconv.Itoa(v), errors.New(msg))
}
