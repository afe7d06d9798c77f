package history

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tagforge/tagforge/internal/event"
	"github.com/tagforge/tagforge/internal/logging"
	"github.com/tagforge/tagforge/pkg/types"
)

// Watcher monitors the session data directory and publishes a
// session.list.changed event when transcript files are created, removed or
// rewritten outside the current process. Events are debounced so a burst of
// file writes produces a single notification.
type Watcher struct {
	watcher  *fsnotify.Watcher
	bus      *event.Bus
	debounce time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher over the store's base directory.
func NewWatcher(basePath string, bus *event.Bus) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := []string{basePath}
	for _, category := range types.Categories() {
		dirs = append(dirs, filepath.Join(basePath, string(category)))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
	}

	return &Watcher{
		watcher:  w,
		bus:      bus,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Safe to call once.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

// Stop ends watching and waits for the loop to exit. Safe to call whether or
// not Start ran.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	if started {
		close(w.stopCh)
		<-w.doneCh
	}
	w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.bus.Publish(event.Event{
				Type: event.SessionListChanged,
				Data: event.SessionListChangedData{},
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("session watcher error")
		}
	}
}
