package gateway

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"agentrun/internal/gateway/websocket"
)

const debounceDelay = 100 * time.Millisecond

// ReloadPayload is the body of a reload frame.
type ReloadPayload struct {
	Path string `json:"path"`
}

// Watcher monitors agent transcripts and tells clients when one changed.
type Watcher struct {
	watcher  *fsnotify.Watcher
	hub      *websocket.Hub
	paths    []string
	stopCh   chan struct{}
	stopOnce sync.Once
	debounce map[string]*time.Timer
	mu       sync.Mutex
	onChange func(path string)
	logger   *zerolog.Logger
}

// NewWatcher creates a new file watcher.
func NewWatcher(hub *websocket.Hub, l *zerolog.Logger, paths ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		hub:      hub,
		paths:    paths,
		stopCh:   make(chan struct{}),
		debounce: make(map[string]*time.Timer),
		logger:   l,
	}, nil
}

// OnChange registers a callback run after each debounced change.
func (w *Watcher) OnChange(fn func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start begins watching. Paths that cannot be watched are logged and skipped.
func (w *Watcher) Start() error {
	for _, path := range w.paths {
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("failed to watch path")
		}
	}

	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleEvent(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}

// handleEvent handles a file change event with debouncing.
func (w *Watcher) handleEvent(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}

	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.debounce, path)
		cb := w.onChange
		w.mu.Unlock()

		select {
		case <-w.stopCh:
			return
		default:
		}

		if err := w.hub.BroadcastAll(websocket.TypeReload, ReloadPayload{Path: path}); err != nil {
			w.logger.Debug().Err(err).Str("path", path).Msg("reload broadcast failed")
		}
		if cb != nil {
			cb(path)
		}
	})
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		for _, timer := range w.debounce {
			timer.Stop()
		}
		w.mu.Unlock()

		_ = w.watcher.Close()
	})
}
