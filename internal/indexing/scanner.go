package indexing

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/methodmap/internal/config"
	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/pkg/pathutil"
)

// ScannedFile is one eligible source file
type ScannedFile struct {
	Rel   string // slash-separated, relative to the project root
	Abs   string
	Size  int64
	MTime int64 // unix nanoseconds
}

// FileScanner enumerates eligible files under the project root
type FileScanner struct {
	config          *config.Config
	gitignoreParser *config.GitignoreParser
	dataDir         string
}

// NewFileScanner loads .gitignore when configured to respect it
func NewFileScanner(cfg *config.Config) *FileScanner {
	fs := &FileScanner{
		config:  cfg,
		dataDir: filepath.Clean(cfg.DataDir()),
	}
	if cfg.Index.RespectGitignore {
		gp := config.NewGitignoreParser()
		if err := gp.LoadGitignore(cfg.Project.Root); err != nil {
			debug.LogIndexing("failed to load .gitignore: %v", err)
		} else {
			fs.gitignoreParser = gp
		}
	}
	return fs
}

// Scan walks the project root and returns eligible files sorted by relative path
func (fs *FileScanner) Scan(ctx context.Context) ([]ScannedFile, error) {
	root := fs.config.Project.Root
	var files []ScannedFile

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			debug.LogIndexing("skipping %s: %v", path, err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != root && fs.ShouldIgnoreDirectory(path) {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := fs.fileInfo(path, d)
		if err != nil || info == nil {
			return nil
		}
		if !fs.ShouldProcessFile(path, info) {
			return nil
		}

		files = append(files, ScannedFile{
			Rel:   pathutil.ToKey(path, root),
			Abs:   path,
			Size:  info.Size(),
			MTime: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// fileInfo resolves symlinks when they are followed; symlinked directories are never walked
func (fs *FileScanner) fileInfo(path string, d os.DirEntry) (os.FileInfo, error) {
	if d.Type()&os.ModeSymlink != 0 {
		if !fs.config.Index.FollowSymlinks {
			return nil, nil
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return nil, err
		}
		return info, nil
	}
	return d.Info()
}

// ShouldIgnoreDirectory reports whether a directory can be pruned from the walk
func (fs *FileScanner) ShouldIgnoreDirectory(absPath string) bool {
	if filepath.Clean(absPath) == fs.dataDir {
		return true
	}
	rel := pathutil.ToKey(absPath, fs.config.Project.Root)

	// Only "<dir>/**" patterns can prune a whole directory
	for _, pattern := range fs.config.Exclude {
		if !strings.HasSuffix(pattern, "/**") {
			continue
		}
		if matched, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel); matched {
			return true
		}
	}

	return fs.gitignoreParser != nil && fs.gitignoreParser.ShouldIgnore(rel, true)
}

// ShouldProcessFile applies the extension allow-list, globs, gitignore and size limit
func (fs *FileScanner) ShouldProcessFile(absPath string, info os.FileInfo) bool {
	if info.IsDir() {
		return false
	}
	if !pathutil.IsWithin(absPath, fs.config.Project.Root) || pathutil.IsWithin(absPath, fs.dataDir) {
		return false
	}
	if suffix := fs.config.Reinject.BackupSuffix; suffix != "" && strings.HasSuffix(absPath, suffix) {
		return false
	}
	if !fs.config.HasExtension(strings.ToLower(filepath.Ext(absPath))) {
		return false
	}

	rel := pathutil.ToKey(absPath, fs.config.Project.Root)
	if !fs.matchesInclude(rel) {
		return false
	}
	for _, pattern := range fs.config.Exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return false
		}
	}
	if fs.gitignoreParser != nil && fs.gitignoreParser.ShouldIgnore(rel, false) {
		return false
	}

	return info.Size() <= fs.config.Index.MaxFileSize
}

func (fs *FileScanner) matchesInclude(rel string) bool {
	if len(fs.config.Include) == 0 {
		return true
	}
	for _, pattern := range fs.config.Include {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}
