package lua

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/buildlink/internal/logging"
	"github.com/dshills/buildlink/internal/task/initscript"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 200 * time.Millisecond

// ErrWatcherClosed is returned when reloading a closed watcher.
var ErrWatcherClosed = errors.New("plugin watcher is closed")

// WatcherOption configures a Watcher.
type WatcherOption func(*watcherConfig)

type watcherConfig struct {
	logger       *logging.Logger
	debounce     time.Duration
	contributors []ContributorOption
	onReload     func(names []string, err error)
}

// WithWatcherLogger sets the watcher's logger. Contributors log through it
// too unless WithContributorOptions overrides that.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(c *watcherConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDebounce sets the quiet period after the last file event before the
// directory is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(c *watcherConfig) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithContributorOptions passes opts to every contributor the watcher loads.
func WithContributorOptions(opts ...ContributorOption) WatcherOption {
	return func(c *watcherConfig) {
		c.contributors = append(c.contributors, opts...)
	}
}

// WithReloadHook registers fn to run after each reload with the names of
// the loaded contributors and the load error, if any.
func WithReloadHook(fn func(names []string, err error)) WatcherOption {
	return func(c *watcherConfig) {
		c.onReload = fn
	}
}

// Watcher keeps the contributors of a plugin directory loaded and reloads
// them when a script changes. It is safe for concurrent use.
//
// Contributors replaced by a reload are closed. A task execution still
// holding one of them sees its Enhance fail with ErrStateClosed, which is
// logged and contributes nothing.
type Watcher struct {
	dir    string
	config watcherConfig
	logger *logging.Logger

	fsw *fsnotify.Watcher

	mu      sync.RWMutex
	current []*Contributor
	closed  bool

	reloads atomic.Int64

	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewWatcher loads dir and starts watching it. Script load errors are
// logged and do not prevent the watcher from starting. A missing directory
// yields an empty chain and is not watched.
func NewWatcher(dir string, opts ...WatcherOption) (*Watcher, error) {
	cfg := watcherConfig{
		logger:   logging.Nop(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:     absDir,
		config:  cfg,
		logger:  cfg.logger.WithComponent("plugins"),
		closeCh: make(chan struct{}),
	}
	w.config.contributors = append([]ContributorOption{WithLogger(w.logger)}, cfg.contributors...)

	if err := w.Reload(); err != nil {
		w.logger.Warn("plugin load failed", "dir", w.dir, "error", err)
	}

	if _, err := os.Stat(absDir); errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("plugin dir not watched", "dir", w.dir)
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		closeAll(w.current)
		return nil, err
	}
	if err := fsw.Add(absDir); err != nil {
		_ = fsw.Close()
		closeAll(w.current)
		return nil, fmt.Errorf("watch %s: %w", absDir, err)
	}
	w.fsw = fsw

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Watching reports whether the directory is being watched for changes.
func (w *Watcher) Watching() bool { return w.fsw != nil }

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Reloads returns how many times the directory has been loaded.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// Chain returns the currently loaded contributors in load order.
func (w *Watcher) Chain() []initscript.Contributor {
	w.mu.RLock()
	defer w.mu.RUnlock()

	chain := make([]initscript.Contributor, len(w.current))
	for i, c := range w.current {
		chain[i] = c
	}
	return chain
}

// Names returns the names of the loaded contributors.
func (w *Watcher) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return contributorNames(w.current)
}

// Reload loads the directory again and swaps in the new contributors.
// Scripts that fail to load are left out; the returned error joins their
// load errors.
func (w *Watcher) Reload() error {
	loaded, err := LoadDir(w.dir, w.config.contributors...)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		closeAll(loaded)
		return ErrWatcherClosed
	}
	old := w.current
	w.current = loaded
	w.mu.Unlock()

	closeAll(old)
	w.reloads.Add(1)

	names := contributorNames(loaded)
	w.logger.Debug("plugins loaded", "dir", w.dir, "contributors", names)
	if w.config.onReload != nil {
		w.config.onReload(names, err)
	}
	return err
}

// Close stops watching and closes the loaded contributors.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	var err error
	if w.fsw != nil {
		w.closedWg.Wait()
		err = w.fsw.Close()
	}

	w.mu.Lock()
	current := w.current
	w.current = nil
	w.mu.Unlock()
	closeAll(current)

	return err
}

// processLoop reloads the directory once events settle.
func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isScriptEvent(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.debounce)
			} else {
				timer.Reset(w.config.debounce)
			}
			timerCh = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("plugin watcher error", "dir", w.dir, "error", err)

		case <-timerCh:
			timerCh = nil
			if err := w.Reload(); err != nil {
				if errors.Is(err, ErrWatcherClosed) {
					return
				}
				w.logger.Warn("plugin reload failed", "dir", w.dir, "error", err)
			}
		}
	}
}

// isScriptEvent reports whether ev changes a contributor script.
func isScriptEvent(ev fsnotify.Event) bool {
	if !isScript(filepath.Base(ev.Name)) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

func contributorNames(cs []*Contributor) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name()
	}
	return names
}
