package descriptor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"saged/internal/config"
	"saged/internal/logging"
)

// ReloadFunc receives the outcome of revalidating one descriptor file.
// On failure specs is nil and err carries the validation error.
type ReloadFunc func(path string, specs []config.DescriptorSpec, err error)

// Watcher watches a descriptor directory for YAML changes and
// revalidates files once their edits settle. It never rewrites files:
// a bad descriptor file is reported and the previous catalog stays in
// effect until the file parses again.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	onReload    ReloadFunc
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity for debugging.
type WatcherStats struct {
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	Reloads       int
	Failures      int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// NewWatcher creates a watcher over the given descriptor directory.
// A non-positive debounce falls back to 500ms.
func NewWatcher(dir string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		watcher:     fw,
		dir:         dir,
		onReload:    onReload,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in its own
// goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		logging.Get(logging.CategoryWatcher).Warn("Failed to create descriptor dir %s: %v (continuing anyway)", w.dir, err)
	}

	if err := w.watcher.Add(w.dir); err != nil {
		logging.Get(logging.CategoryWatcher).Warn("Initial watch of %s failed (dir may not exist): %v", w.dir, err)
	} else {
		logging.Watcher("Watching descriptor directory: %s", w.dir)
	}

	go w.run(ctx)

	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.WatcherError("Error closing descriptor watcher: %v", err)
	}
	logging.Watcher("Descriptor watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	// Settled events are flushed on a coarse tick rather than per event
	// so rapid editor saves collapse into one reload.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watcher("Descriptor watcher: context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				logging.Watcher("Descriptor watcher: event channel closed")
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				logging.Watcher("Descriptor watcher: error channel closed")
				return
			}
			logging.WatcherError("Descriptor watcher error: %v", err)
			w.mu.Lock()
			w.stats.Failures++
			w.mu.Unlock()

		case <-ticker.C:
			w.processSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isDescriptorFile(event.Name) {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}

	logging.WatcherDebug("Descriptor %s event for %s", eventType, event.Name)

	w.mu.Lock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType

	switch eventType {
	case "create":
		w.stats.FilesCreated++
	case "modify":
		w.stats.FilesModified++
	case "delete", "rename":
		w.stats.FilesDeleted++
	}

	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// processSettled reloads files whose last event is past the debounce
// window.
func (w *Watcher) processSettled() {
	w.mu.Lock()
	now := time.Now()
	settled := make([]string, 0)
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.reload(path)
	}
}

// reload revalidates one descriptor file and notifies the callback.
func (w *Watcher) reload(path string) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logging.WatcherDebug("Descriptor file removed, skipping reload: %s", path)
			return
		}
	}

	specs, err := LoadFile(path)

	w.mu.Lock()
	w.stats.Reloads++
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil {
		logging.Get(logging.CategoryWatcher).Warn("Descriptor reload failed for %s: %v", path, err)
	} else {
		logging.Watcher("Reloaded %d descriptor specs from %s", len(specs), path)
	}

	if w.onReload != nil {
		w.onReload(path, specs, err)
	}
}

// TriggerReload revalidates every descriptor file in the watched
// directory. Useful at startup so stale files are reported before the
// first edit.
func (w *Watcher) TriggerReload() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.WatcherDebug("Descriptor dir does not exist: %s", w.dir)
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !isDescriptorFile(entry.Name()) {
			continue
		}
		w.reload(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// Stats returns a snapshot of the watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}

func isDescriptorFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
