package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/compozy/statusstream/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/romdo/go-debounce"
)

const (
	defaultWatchDebounce = 100 * time.Millisecond
	maxWatchDelay        = time.Second
)

// Watcher reports changes to configuration files. Bursts of writes are
// coalesced into one notification.
type Watcher struct {
	watcher   *fsnotify.Watcher
	notify    func()
	cancel    func()
	callbacks []func()
	watched   map[string]struct{}
	mu        sync.RWMutex
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher creates a file watcher that waits for wait of quiet before
// notifying. A non-positive wait uses the default.
func NewWatcher(wait time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if wait <= 0 {
		wait = defaultWatchDebounce
	}
	w := &Watcher{
		watcher: fsWatcher,
		watched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	w.notify, w.cancel = debounce.NewWithMaxWait(wait, maxWatchDelay, w.notifyCallbacks)
	return w, nil
}

// Watch starts watching path until ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if err := w.watcher.Add(absPath); err != nil {
		return fmt.Errorf("failed to watch file: %w", err)
	}
	w.mu.Lock()
	w.watched[absPath] = struct{}{}
	w.mu.Unlock()
	w.startOnce.Do(func() {
		go w.handleEvents(ctx)
	})
	return nil
}

// OnChange registers a callback run after the watched files change.
func (w *Watcher) OnChange(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *Watcher) handleEvents(ctx context.Context) {
	log := logger.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.mu.RLock()
			_, watched := w.watched[event.Name]
			w.mu.RUnlock()
			if watched && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.notify()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Configuration watcher error", "error", err)
		}
	}
}

func (w *Watcher) notifyCallbacks() {
	w.mu.RLock()
	callbacks := append([]func(){}, w.callbacks...)
	w.mu.RUnlock()
	for _, callback := range callbacks {
		if callback != nil {
			callback()
		}
	}
}

// Close stops the watcher and drops pending notifications.
func (w *Watcher) Close() error {
	var closeErr error
	w.closeOnce.Do(func() {
		close(w.done)
		w.cancel()
		if err := w.watcher.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close watcher: %w", err)
		}
	})
	return closeErr
}
