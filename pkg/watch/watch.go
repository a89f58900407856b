// Package watch reloads the index when the bundle file changes.
//
// Changes are debounced, the new index is built off to the side and swapped
// into the holder only when the load succeeds. A failed reload is logged and
// the current index keeps serving.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gofhir/fhirschema/pkg/index"
	"github.com/gofhir/fhirschema/pkg/logger"
)

// DefaultDebounce is the quiet period after the last change before a reload.
const DefaultDebounce = 500 * time.Millisecond

// LoadFunc builds a fresh index from the watched file.
type LoadFunc func(ctx context.Context) (*index.Index, error)

// Option configures a Reloader.
type Option func(*Reloader)

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) {
		if d > 0 {
			r.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Reloader) {
		if l != nil {
			r.log = l
		}
	}
}

// WithNotify registers fn to be called after every reload attempt with its
// result.
func WithNotify(fn func(error)) Option {
	return func(r *Reloader) {
		r.notify = fn
	}
}

// Reloader watches one bundle file and swaps rebuilt indexes into a holder.
type Reloader struct {
	path   string
	holder *index.Holder
	load   LoadFunc
	delay  time.Duration
	log    *logger.Logger
	notify func(error)

	watcher *fsnotify.Watcher
	trigger chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Reloader for the file at path. The parent directory is
// watched so that editors replacing the file by rename are noticed.
func New(path string, holder *index.Holder, load LoadFunc, opts ...Option) (*Reloader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	r := &Reloader{
		path:    abs,
		holder:  holder,
		load:    load,
		delay:   DefaultDebounce,
		log:     logger.Default(),
		watcher: w,
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Path returns the absolute path of the watched file.
func (r *Reloader) Path() string {
	return r.path
}

// Run processes file events until ctx is done. It closes the watcher on
// return.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.stop()
	r.log.Info("Watching %s for changes", r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			r.handleEvent(event)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("File watcher error: %v", err)
		case <-r.trigger:
			_ = r.Reload(ctx)
		}
	}
}

// Reload builds a new index and swaps it in on success. On failure the
// current index stays active and the load error is returned.
func (r *Reloader) Reload(ctx context.Context) error {
	start := time.Now()
	idx, err := r.load(ctx)
	if err != nil {
		r.log.Error("Reload of %s failed, keeping current index: %v", r.path, err)
	} else {
		r.holder.Swap(idx)
		r.log.Info("Reloaded %s: %d resources in %s",
			r.path, idx.Registry().Len(), time.Since(start).Round(time.Millisecond))
	}
	if r.notify != nil {
		r.notify(err)
	}
	return err
}

func (r *Reloader) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != r.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	r.log.Debug("Change detected: %s %s", event.Op, event.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, func() {
		select {
		case r.trigger <- struct{}{}:
		default:
			// a reload is already pending
		}
	})
}

func (r *Reloader) stop() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
	r.watcher.Close()
}
