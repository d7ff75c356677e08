package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/impbridge/impbridge/internal/logging"
	"github.com/impbridge/impbridge/internal/store"
)

// ProfileWatcher watches the file store's profile directory and fires a
// callback when a profile file is rewritten. Only meaningful for the
// file backend; database backends rely on the refresh timer.
type ProfileWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	files    map[string]bool
	mu       sync.RWMutex
	onChange []func()
	debounce time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewProfileWatcher creates a watcher over the profile directory.
func NewProfileWatcher(dir string) (*ProfileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &ProfileWatcher{
		watcher: fsWatcher,
		dir:     dir,
		files: map[string]bool{
			store.ClientFile: true,
			store.RouteFile:  true,
		},
		debounce: 500 * time.Millisecond,
		stop:     make(chan struct{}),
	}, nil
}

// OnChange registers a callback for profile file changes.
func (w *ProfileWatcher) OnChange(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, callback)
}

// SetDebounce sets the debounce duration for file changes.
func (w *ProfileWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching for profile changes.
func (w *ProfileWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.watch()
	return nil
}

// watch monitors for file changes, coalescing editor write bursts into
// one notification.
func (w *ProfileWatcher) watch() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.notify)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("profile watcher error", zap.Error(err))

		case <-w.stop:
			return
		}
	}
}

// notify runs the registered callbacks.
func (w *ProfileWatcher) notify() {
	w.mu.RLock()
	callbacks := make([]func(), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.RUnlock()

	logging.Info("profile files changed", zap.String("dir", w.dir))
	for _, cb := range callbacks {
		go cb()
	}
}

// Stop stops watching for changes.
func (w *ProfileWatcher) Stop() error {
	w.once.Do(func() { close(w.stop) })
	return w.watcher.Close()
}
