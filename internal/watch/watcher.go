// Package watch feeds filesystem changes into the daemon: writes become
// document reopens, removals close the document and drop its highlights.
// Events are debounced per path so editors that write in several syscalls
// produce one analysis restart.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.lsp.dev/uri"

	"github.com/standardbeagle/lad/internal/config"
	"github.com/standardbeagle/lad/internal/daemon"
	"github.com/standardbeagle/lad/internal/debug"
)

// fileEvent is the debounced per-path event class.
type fileEvent int

const (
	eventWrite fileEvent = iota
	eventCreate
	eventRemove
)

// Watcher mirrors a project directory into the daemon's document set.
type Watcher struct {
	cfg       *config.Config
	d         *daemon.Daemon
	watcher   *fsnotify.Watcher
	debouncer *eventDebouncer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a watcher over the daemon. Start must be called separately.
func New(cfg *config.Config, d *daemon.Daemon) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		cfg:     cfg,
		d:       d,
		watcher: fsw,
		ctx:     ctx,
		cancel:  cancel,
	}
	w.debouncer = newEventDebouncer(
		time.Duration(cfg.Watch.DebounceMs)*time.Millisecond, w.processBatch)
	return w, nil
}

// Start walks the project root, adds directory watches, and begins
// processing events.
func (w *Watcher) Start() error {
	if !w.cfg.Watch.Enabled {
		debug.LogWatch("file watching disabled in configuration\n")
		return nil
	}
	root := w.cfg.Project.Root
	if err := w.addWatches(root); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	w.wg.Add(1)
	go w.processEvents()
	debug.LogWatch("watching %s\n", root)
	return nil
}

// Stop tears the watcher down. Events pending in the debouncer are dropped;
// the daemon is shutting down with them.
func (w *Watcher) Stop() {
	w.cancel()
	if err := w.watcher.Close(); err != nil {
		debug.LogWatch("error closing watcher: %v\n", err)
	}
	w.debouncer.stop()
	w.wg.Wait()
}

// addWatches recursively watches all directories under root, guarding
// against symlink cycles.
func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if w.excludedDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			debug.LogWatch("failed to watch %s: %v\n", path, err)
		}
		return nil
	})
}

func (w *Watcher) excludedDir(path string) bool {
	for _, pattern := range w.cfg.Exclude {
		dirPattern := strings.TrimSuffix(pattern, "/**")
		if matched, _ := filepath.Match(dirPattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}

// wanted checks a file path against the include/exclude globs. An empty
// include list accepts everything not excluded.
func (w *Watcher) wanted(path string) bool {
	rel := path
	if r, err := filepath.Rel(w.cfg.Project.Root, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	for _, pattern := range w.cfg.Exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return false
		}
	}
	if len(w.cfg.Include) == 0 {
		return true
	}
	for _, pattern := range w.cfg.Include {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			debug.LogWatch("watcher error: %v\n", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	info, err := os.Stat(path)
	if err != nil {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && w.wanted(path) {
			w.debouncer.add(path, eventRemove)
		}
		return
	}
	if info.IsDir() {
		// New directories need their own watch.
		if event.Op&fsnotify.Create != 0 && !w.excludedDir(path) {
			if err := w.watcher.Add(path); err != nil {
				debug.LogWatch("failed to watch new directory %s: %v\n", path, err)
			}
		}
		return
	}
	if info.Size() > w.cfg.Daemon.MaxDocumentSize {
		debug.LogWatch("skipping oversized file %s (%d bytes)\n", path, info.Size())
		return
	}
	if !w.wanted(path) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		w.debouncer.add(path, eventCreate)
	case event.Op&fsnotify.Write != 0:
		w.debouncer.add(path, eventWrite)
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		w.debouncer.add(path, eventRemove)
	}
}

// processBatch applies one debounced batch to the daemon. Removals run
// first so a rename never leaves two live documents for one file.
func (w *Watcher) processBatch(events map[string]fileEvent) {
	for path, ev := range events {
		if ev != eventRemove {
			continue
		}
		if doc := w.d.Documents().Lookup(uri.File(path)); doc != nil {
			debug.LogWatch("closing removed file %s\n", path)
			w.d.CloseDocument(doc.ID())
		}
	}
	for path, ev := range events {
		if ev == eventRemove {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			debug.LogWatch("failed to read %s: %v\n", path, err)
			continue
		}
		if _, err := w.d.OpenDocument(uri.File(path), string(data)); err != nil {
			debug.LogWatch("failed to open %s: %v\n", path, err)
		}
	}
}

// eventDebouncer batches file events per path; the latest event class for a
// path wins. The timer re-arms on every add, so a burst flushes once.
type eventDebouncer struct {
	mu       sync.Mutex
	events   map[string]fileEvent
	debounce time.Duration
	timer    *time.Timer
	stopped  bool
	flushFn  func(map[string]fileEvent)
}

func newEventDebouncer(debounce time.Duration, flush func(map[string]fileEvent)) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]fileEvent),
		debounce: debounce,
		flushFn:  flush,
	}
}

func (d *eventDebouncer) add(path string, ev fileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.events[path] = ev
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

// stop drops pending events. Flushing at shutdown would race the daemon's
// own teardown.
func (d *eventDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.events = make(map[string]fileEvent)
}

func (d *eventDebouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	events := d.events
	d.events = make(map[string]fileEvent)
	d.mu.Unlock()

	if len(events) == 0 {
		return
	}
	debug.LogWatch("processing %d debounced file events\n", len(events))
	d.flushFn(events)
}
