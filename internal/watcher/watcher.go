package watcher

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a debounced file system change under a watched path
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher watches directories for changes with per-path debouncing.
// Transient git lock files are filtered out so watching a git dir does
// not fire on every ref update in progress.
type Watcher struct {
	debounce time.Duration
	callback func(Event)
	fsw      *fsnotify.Watcher

	done    chan struct{}
	started bool
	closed  bool
	mu      sync.Mutex

	timers   map[string]*time.Timer
	timersMu sync.Mutex
}

// New creates a Watcher for the given path
func New(path string, debounce time.Duration, callback func(Event)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch path %s: %w", path, err)
	}

	return &Watcher{
		debounce: debounce,
		callback: callback,
		fsw:      fsw,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// AddPath adds another directory to the watch set
func (w *Watcher) AddPath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	return w.fsw.Add(path)
}

// Start begins delivering debounced events to the callback
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}
	w.started = true

	go w.loop()
	return nil
}

// Close stops watching and cancels pending timers
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.started {
		close(w.done)
	}

	w.timersMu.Lock()
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.timersMu.Unlock()

	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ignored(event.Name) {
				continue
			}
			w.debounceEvent(Event{Path: event.Name, Op: event.Op})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)

		case <-w.done:
			return
		}
	}
}

// ignored filters git's transient lock and temp files
func ignored(path string) bool {
	return strings.HasSuffix(path, ".lock") || strings.HasSuffix(path, "~")
}

// debounceEvent coalesces rapid changes to the same path
func (w *Watcher) debounceEvent(e Event) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if timer, exists := w.timers[e.Path]; exists {
		timer.Stop()
	}

	w.timers[e.Path] = time.AfterFunc(w.debounce, func() {
		w.timersMu.Lock()
		delete(w.timers, e.Path)
		w.timersMu.Unlock()

		w.callback(e)
	})
}
