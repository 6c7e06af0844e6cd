package notify

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher feeds filesystem events for the data root into a Notifier. It
// collapses the noisy per-file event stream into a single "the root changed"
// notification per event, which is enough for cache invalidation downstream.
type Watcher struct {
	notifier *Notifier
	root     string

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher starts watching root and publishes changes to notifier.
func NewWatcher(root string, notifier *Notifier) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("notify: create watcher: %w", err)
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("notify: watch %s: %w", root, err)
	}

	w := &Watcher{
		notifier: notifier,
		root:     root,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops the watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// loop translates fsnotify events into path change notifications.
func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.notifier.Notify(PathChange{NewRoot: w.root, Source: "watcher"})
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watch errors are not fatal; the next poll of the notifier by
			// consumers proceeds with the last known root.
		}
	}
}
