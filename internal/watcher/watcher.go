// Package watcher provides file system watching with automatic re-indexing
// of watched photo folders.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/imgwalk"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ingest"
)

// defaultDebounce matches the reference watcher's flush interval: frequent
// writes to the same file (e.g. an editor's save-in-place) collapse into a
// single re-index instead of one per fsnotify event.
const defaultDebounce = 1500 * time.Millisecond

// pollInterval is how often processDebounced checks pending entries' ages,
// matching the reference watcher's ~1s poll rather than ticking at the
// debounce duration itself.
const pollInterval = time.Second

// Watcher watches one or more root folders and feeds changed files through
// an ingest.Pipeline.
type Watcher struct {
	roots    []string
	pipeline *ingest.Pipeline

	// debounce tracks the last time each pending path was touched by a
	// create/write event. A poll every pollInterval flushes only the
	// entries whose age exceeds debounceTime, so a sustained burst of
	// writes to the same file keeps refreshing its entry and is coalesced
	// into a single re-index once the writes actually go quiet.
	debounce     map[string]time.Time
	debounceMu   sync.Mutex
	debounceTime time.Duration
	pollInterval time.Duration

	autoIndexMu sync.Mutex
	autoIndex   bool

	onEvent func(event string, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime overrides the default debounce duration for batching
// create/write events.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) { w.debounceTime = d }
}

// WithPollInterval overrides the default ~1s poll used to check pending
// entries' ages. Exposed mainly so tests don't have to wait a full second
// per assertion.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithAutoIndex sets the initial auto-index state. When disabled,
// create/modify events are dropped instead of queued; delete events always
// flow regardless, keeping the index consistent with what's on disk.
func WithAutoIndex(enabled bool) Option {
	return func(w *Watcher) { w.autoIndex = enabled }
}

// WithEventCallback sets a callback invoked after each file is indexed or
// removed, receiving "index" or "delete" and the affected absolute path.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) { w.onEvent = fn }
}

// New creates a watcher over the given root folders, feeding changes
// through pipeline.
func New(roots []string, pipeline *ingest.Pipeline, opts ...Option) (*Watcher, error) {
	absRoots := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, err
		}
		absRoots = append(absRoots, abs)
	}

	w := &Watcher{
		roots:        absRoots,
		pipeline:     pipeline,
		debounce:     make(map[string]time.Time),
		debounceTime: defaultDebounce,
		pollInterval: pollInterval,
		autoIndex:    true,
		onEvent:      func(string, string) {},
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// SetAutoIndex toggles whether create/modify events are queued for
// re-indexing while the watcher is running. Delete events are never
// affected by this toggle.
func (w *Watcher) SetAutoIndex(enabled bool) {
	w.autoIndexMu.Lock()
	w.autoIndex = enabled
	w.autoIndexMu.Unlock()
}

func (w *Watcher) autoIndexEnabled() bool {
	w.autoIndexMu.Lock()
	defer w.autoIndexMu.Unlock()
	return w.autoIndex
}

// Start begins watching for file changes. Blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, root := range w.roots {
		if err := addDirectories(fsw, root); err != nil {
			log.Warn("failed to register folder for watching", "folder", root, "err", err)
			continue
		}
		log.Info("watching folder for changes", "folder", root)
	}

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, fsw)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "err", err)
		}
	}
}

// addDirectories recursively registers every non-ignored directory under
// root with fsw.
func addDirectories(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if shouldSkipDir(name) {
			return filepath.SkipDir
		}

		if err := fsw.Add(path); err != nil {
			log.Debug("failed to watch directory", "path", path, "err", err)
		}
		return nil
	})
}

func shouldSkipDir(name string) bool {
	skip := []string{
		"node_modules", "@eaDir", ".thumbnails", "$RECYCLE.BIN",
		"System Volume Information", ".git", ".svn", ".hg",
	}
	for _, s := range skip {
		if name == s {
			return true
		}
	}
	return false
}

// handleEvent routes a single fsnotify event: directory creation triggers
// re-registration, deletions bypass the debounce queue entirely (matching
// the reference watcher's contract that removals should never wait behind
// a pending write), and everything else is coalesced for the next flush.
func (w *Watcher) handleEvent(event fsnotify.Event, fsw *fsnotify.Watcher) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !shouldSkipDir(filepath.Base(path)) {
				fsw.Add(path)
				log.Debug("added new directory to watch", "path", path)
			}
			return
		}
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return
	}

	if !imgwalk.IsSupportedImage(path) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.debounceMu.Lock()
		delete(w.debounce, path)
		w.debounceMu.Unlock()

		if err := w.pipeline.RemoveDeleted(path); err != nil {
			log.Error("failed to remove deleted image", "path", path, "err", err)
			return
		}
		w.onEvent("delete", path)
		log.Info("removed from index", "file", path)
		return
	}

	if !w.autoIndexEnabled() {
		return
	}

	w.debounceMu.Lock()
	w.debounce[path] = time.Now()
	w.debounceMu.Unlock()
}

// processDebounced polls the pending create/write queue every pollInterval
// for as long as ctx is live, flushing whichever entries have aged past
// debounceTime on each pass.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced()
		}
	}
}

// flushDebounced re-indexes every pending path whose last event is older
// than debounceTime, leaving paths that were touched more recently queued
// for a later poll so a sustained write burst collapses into one re-index.
func (w *Watcher) flushDebounced() {
	now := time.Now()

	w.debounceMu.Lock()
	var ready []string
	for path, lastSeen := range w.debounce {
		if now.Sub(lastSeen) >= w.debounceTime {
			ready = append(ready, path)
			delete(w.debounce, path)
		}
	}
	w.debounceMu.Unlock()

	for _, path := range ready {
		if _, err := w.pipeline.IndexFile(path); err != nil {
			log.Error("failed to index changed file", "path", path, "err", err)
			continue
		}
		w.onEvent("index", path)
		log.Info("indexed", "file", path)
	}
}
