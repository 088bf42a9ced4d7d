package sessioncache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeCallback is called when the cache file changes outside this process,
// after the watcher has logged the change.
type ChangeCallback func(path string)

// Watcher warns when another process rewrites the cache file. Sharing one
// cache file between concurrent runs is unsupported; the last writer wins.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback ChangeCallback
	logger   zerolog.Logger
	grace    time.Duration

	mu          sync.Mutex
	expectUntil time.Time
	stopCh      chan struct{}
	stopped     bool
}

// NewWatcher watches the directory holding path; the file itself is replaced
// by rename on every save, so watching it directly would lose the watch. The
// directory is created when missing so the first run is watched too.
func NewWatcher(path string, callback ChangeCallback, logger zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	cw := &Watcher{
		watcher:  w,
		path:     abs,
		callback: callback,
		logger:   logger,
		grace:    time.Second,
		stopCh:   make(chan struct{}),
	}
	go cw.loop()
	return cw, nil
}

// Expect marks the next events on the file as our own write.
func (w *Watcher) Expect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expectUntil = time.Now().Add(w.grace)
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.expected() {
				continue
			}

			w.logger.Warn().
				Str("path", w.path).
				Str("op", event.Op.String()).
				Msg("session cache modified by another process; the last writer wins")
			if w.callback != nil {
				w.callback(w.path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("session cache watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) expected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Now().Before(w.expectUntil)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	return w.watcher.Close()
}
