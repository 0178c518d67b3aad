package indexing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/methodmap/internal/debug"
	"github.com/standardbeagle/methodmap/pkg/pathutil"
)

// FileEventType represents the type of file system event
type FileEventType int

const (
	FileEventCreate FileEventType = iota
	FileEventWrite
	FileEventRemove
)

// WatchBatch reports one debounced batch of re-indexing
type WatchBatch struct {
	Changed  []string
	Removed  []string
	Errors   []error
	Duration time.Duration
}

// WatchStats contains statistics about file watching operations
type WatchStats struct {
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
	IsActive        bool
}

// Watcher keeps the index current while files change, re-indexing changed
// files after a quiet period and saving the index after each batch
type Watcher struct {
	ix       *Indexer
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onBatch  func(WatchBatch)

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu         sync.RWMutex
	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time
	active          bool
}

// NewWatcher creates a watcher over the indexer's project root
func NewWatcher(ix *Indexer) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	debounce := time.Duration(ix.cfg.Index.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}
	return &Watcher{ix: ix, watcher: fw, debounce: debounce}, nil
}

// OnBatch sets a callback invoked after every processed batch
func (w *Watcher) OnBatch(fn func(WatchBatch)) {
	w.onBatch = fn
}

// Start adds watches for every eligible directory and begins processing events
func (w *Watcher) Start(ctx context.Context) error {
	root := w.ix.Root()
	debug.LogWatch("starting file watcher for %s", root)

	if err := w.addWatches(root); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", root, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.setActive(true)
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop ends event processing; pending events are dropped
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	w.setActive(false)
	debug.LogWatch("file watcher stopped")
	return err
}

func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		// Symlink cycles
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return filepath.SkipDir
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if path != root && w.ix.scanner.ShouldIgnoreDirectory(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			debug.LogWatch("failed to watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]FileEventType)
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.handleEvent(event, pending) {
				if timer == nil {
					timer = time.NewTimer(w.debounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(w.debounce)
				}
				timerC = timer.C
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			debug.LogWatch("watcher error: %v", err)
			w.incrementStats(0, 1)

		case <-timerC:
			timerC = nil
			batch := pending
			pending = make(map[string]FileEventType)
			w.flush(ctx, batch)
		}
	}
}

// handleEvent records a relevant event; returns false when it is ignored
func (w *Watcher) handleEvent(event fsnotify.Event, pending map[string]FileEventType) bool {
	path := event.Name
	debug.LogWatch("event %v for %s", event.Op, path)

	info, err := os.Stat(path)
	if err != nil {
		// Removed or renamed away
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			pending[path] = FileEventRemove
			return true
		}
		return false
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !w.ix.scanner.ShouldIgnoreDirectory(path) {
			if err := w.addWatches(path); err != nil {
				debug.LogWatch("failed to watch new directory %s: %v", path, err)
			}
			// Files written before the watch was added
			pending[path] = FileEventCreate
			return true
		}
		return false
	}

	if !w.ix.scanner.ShouldProcessFile(path, info) {
		return false
	}
	switch {
	case event.Op&fsnotify.Create != 0:
		pending[path] = FileEventCreate
	case event.Op&(fsnotify.Write|fsnotify.Chmod) != 0:
		if _, seen := pending[path]; !seen {
			pending[path] = FileEventWrite
		}
	default:
		return false
	}
	return true
}

func (w *Watcher) flush(ctx context.Context, events map[string]FileEventType) {
	if len(events) == 0 {
		return
	}
	start := time.Now()
	root := w.ix.Root()
	batch := WatchBatch{}

	paths := make([]string, 0, len(events))
	for p := range events {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rel := pathutil.ToKey(path, root)
		if events[path] == FileEventRemove {
			if n := w.removeTree(rel); n > 0 {
				batch.Removed = append(batch.Removed, rel)
			}
			continue
		}

		if info, err := os.Stat(path); err == nil && info.IsDir() {
			batch.Changed = append(batch.Changed, w.indexTree(ctx, path, &batch)...)
			continue
		}
		changed, err := w.ix.IndexFile(ctx, rel)
		if err != nil {
			batch.Errors = append(batch.Errors, err)
		}
		if changed {
			batch.Changed = append(batch.Changed, rel)
		}
	}

	if len(batch.Changed) > 0 || len(batch.Removed) > 0 {
		if err := w.ix.Save(); err != nil {
			batch.Errors = append(batch.Errors, err)
		}
	}
	batch.Duration = time.Since(start)
	w.incrementStats(int64(len(events)), int64(len(batch.Errors)))
	debug.LogWatch("batch: %d changed, %d removed, %d errors", len(batch.Changed), len(batch.Removed), len(batch.Errors))

	if w.onBatch != nil {
		w.onBatch(batch)
	}
}

// removeTree drops a file, or every file under a removed directory
func (w *Watcher) removeTree(rel string) int {
	removed := 0
	for _, f := range w.ix.Files() {
		if f.Path == rel || strings.HasPrefix(f.Path, rel+"/") {
			w.ix.RemoveFile(f.Path)
			removed++
		}
	}
	return removed
}

// indexTree indexes eligible files under a newly created directory
func (w *Watcher) indexTree(ctx context.Context, dir string, batch *WatchBatch) []string {
	var changed []string
	root := w.ix.Root()
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.ix.scanner.ShouldIgnoreDirectory(path) {
				return filepath.SkipDir
			}
			return nil
		}
		rel := pathutil.ToKey(path, root)
		ok, err := w.ix.IndexFile(ctx, rel)
		if err != nil {
			batch.Errors = append(batch.Errors, err)
		}
		if ok {
			changed = append(changed, rel)
		}
		return nil
	})
	return changed
}

func (w *Watcher) incrementStats(events, errors int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	w.eventsProcessed += events
	w.errorCount += errors
	w.lastEventTime = time.Now()
}

func (w *Watcher) setActive(active bool) {
	w.statsMu.Lock()
	w.active = active
	w.statsMu.Unlock()
}

// GetStats returns current watch statistics
func (w *Watcher) GetStats() WatchStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	return WatchStats{
		EventsProcessed: w.eventsProcessed,
		ErrorCount:      w.errorCount,
		LastEventTime:   w.lastEventTime,
		IsActive:        w.active,
	}
}
