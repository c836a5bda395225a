// Package watcher turns filesystem activity in the saves directory into a
// queue of settled save file paths.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"anchorkeeper/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// ErrWatchClosed is reported by Err when fsnotify closed its channels under
// a running watcher.
var ErrWatchClosed = errors.New("filesystem notifications closed")

// Watcher watches one directory (non-recursively) for created or modified save
// files and enqueues each one after its writes have settled.
type Watcher struct {
	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	dir       string
	suffix    string
	debouncer *Debouncer
	queue     *Queue
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	exitErr   error

	stats Stats
}

// Stats tracks watcher activity for status output and tests.
type Stats struct {
	FilesCreated  int
	FilesModified int
	Ignored       int
	Enqueued      int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// New creates a Watcher for dir. Settled paths ending in suffix are put on queue.
func New(dir, suffix string, debounce time.Duration, queue *Queue) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fw,
		dir:     dir,
		suffix:  suffix,
		queue:   queue,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	w.debouncer = NewDebouncer(debounce, w.enqueue)
	return w, nil
}

// Start begins watching the directory.
// This method is non-blocking; events are handled in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	logging.Watcher("Watching %s files in %s", w.suffix, w.dir)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher, drops pending debounces and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.debouncer.Stop()
	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatcher).Error("Error closing watcher: %v", err)
	}
	logging.Watcher("Watcher stopped")
}

// Done is closed once the event loop has exited, for whatever reason.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Err reports why the event loop exited: ErrWatchClosed when fsnotify went
// away, nil after Stop or context cancellation.
func (w *Watcher) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.exitErr
}

// run is the main event loop for the watcher.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			logging.WatcherDebug("Context cancelled")
			return

		case <-w.stopCh:
			logging.WatcherDebug("Stop signal received")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				logging.Get(logging.CategoryWatcher).Error("Event channel closed, no longer watching")
				w.mu.Lock()
				w.exitErr = ErrWatchClosed
				w.mu.Unlock()
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				logging.Get(logging.CategoryWatcher).Error("Error channel closed, no longer watching")
				w.mu.Lock()
				w.exitErr = ErrWatchClosed
				w.mu.Unlock()
				return
			}
			logging.Get(logging.CategoryWatcher).Error("Watch error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		}
	}
}

// handleEvent filters one filesystem event and touches the debouncer.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	var eventType string
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = "create"
	case event.Op.Has(fsnotify.Write):
		eventType = "modify"
	default:
		return // remove, rename, chmod
	}

	if !strings.HasSuffix(event.Name, w.suffix) {
		w.mu.Lock()
		w.stats.Ignored++
		w.mu.Unlock()
		return
	}

	logging.WatcherDebug("%s event for %s", eventType, event.Name)

	w.mu.Lock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType
	if eventType == "create" {
		w.stats.FilesCreated++
	} else {
		w.stats.FilesModified++
	}
	w.mu.Unlock()

	w.debouncer.Touch(event.Name)
}

// enqueue is the debouncer's emit callback.
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	w.stats.Enqueued++
	w.mu.Unlock()

	logging.WatcherDebug("Settled, queueing %s", path)
	w.queue.Put(path)
}

// Stats returns the current watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// ResetStats resets the watcher statistics.
func (w *Watcher) ResetStats() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats = Stats{}
}

// IsWatching returns true if the watcher is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}

// PendingPaths returns how many paths are still inside their quiet period.
func (w *Watcher) PendingPaths() int {
	return w.debouncer.Pending()
}

// ScanExisting lists the files in dir ending in suffix, sorted by name.
// Used to process saves written while the daemon was not running.
func ScanExisting(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
