// Package signals lets another process stop a running invocation by
// creating a file: `touch <dir>/stop` cancels the watched context.
package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// StopFile is the name of the file that requests a stop.
const StopFile = "stop"

// ErrStopRequested is the cancellation cause when the stop file appears.
var ErrStopRequested = errors.New("stop requested")

// pollInterval is used when the watcher cannot be started.
const pollInterval = 500 * time.Millisecond

// Watcher watches a signals directory for the stop file.
type Watcher struct {
	dir string
	log zerolog.Logger

	mu      sync.RWMutex
	stopped bool

	watcher *fsnotify.Watcher
	cancel  context.CancelCauseFunc
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// Watch creates dir if needed, removes a stale stop file and starts
// watching. The returned context is cancelled with ErrStopRequested when
// the stop file is created; it is also cancelled when parent is done.
// Call Close when the run is over.
func Watch(parent context.Context, dir string, log zerolog.Logger) (context.Context, *Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, err
	}
	if err := os.Remove(filepath.Join(dir, StopFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}

	w := &Watcher{
		dir:  dir,
		log:  log.With().Str("component", "signals").Logger(),
		done: make(chan struct{}),
	}
	ctx, cancel := context.WithCancelCause(parent)
	w.cancel = cancel

	fw, err := fsnotify.NewWatcher()
	if err == nil {
		if err = fw.Add(dir); err != nil {
			fw.Close()
		}
	}
	if err != nil {
		// Continue without the watcher; poll for the file instead.
		w.log.Warn().Err(err).Msg("file watcher unavailable, polling for stop file")
		w.wg.Add(1)
		go w.poll(ctx, cancel)
		return ctx, w, nil
	}

	w.watcher = fw
	w.wg.Add(1)
	go w.watch(ctx, cancel)
	return ctx, w, nil
}

// Path returns the stop file path.
func (w *Watcher) Path() string {
	return filepath.Join(w.dir, StopFile)
}

// Stopped returns true if a stop was requested.
func (w *Watcher) Stopped() bool {
	// Also check the file directly in case the watcher missed it.
	if _, err := os.Stat(w.Path()); err == nil {
		w.markStopped()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

// RequestStop creates the stop file.
func (w *Watcher) RequestStop() error {
	return os.WriteFile(w.Path(), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Close stops watching and releases the context returned by Watch.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
		w.wg.Wait()
		w.cancel(nil)
	})
	return err
}

func (w *Watcher) markStopped() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}

func (w *Watcher) watch(ctx context.Context, cancel context.CancelCauseFunc) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == StopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.log.Info().Str("path", event.Name).Msg("stop file detected")
				w.markStopped()
				cancel(ErrStopRequested)
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Debug().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) poll(ctx context.Context, cancel context.CancelCauseFunc) {
	defer w.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.Stopped() {
				cancel(ErrStopRequested)
				return
			}
		}
	}
}
