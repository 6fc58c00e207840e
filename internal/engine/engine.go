// Package engine is the directory watching service behind the coordinator:
// one recursive watch per rule id, mirroring changes into the target
// directory by copying files or linking to them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/farmergreg/rfsnotify"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/fsnotify.v1"

	"github.com/mahyarmirrashed/dsd/internal/excluder"
	"github.com/mahyarmirrashed/dsd/internal/rule"
)

var (
	// ErrWatching is returned when starting an id that is already watched.
	ErrWatching = errors.New("already being watched")
	// ErrNotWatching is returned when stopping an unknown id.
	ErrNotWatching = errors.New("not being watched")
)

// Reporter receives asynchronous errors raised by a running watch.
type Reporter func(id, message string)

// Engine runs one recursive watcher per rule.
type Engine struct {
	exclude *excluder.Excluder
	report  Reporter
	dryRun  bool

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	id      string
	from    string
	to      string
	mode    rule.Mode
	watcher *rfsnotify.RWatcher
	stop    chan struct{}
	done    chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithExcluder skips paths matching the excluder's patterns.
func WithExcluder(ex *excluder.Excluder) Option {
	return func(e *Engine) {
		e.exclude = ex
	}
}

// WithReporter sets where runtime watch errors are sent.
func WithReporter(fn Reporter) Option {
	return func(e *Engine) {
		e.report = fn
	}
}

// WithDryRun logs intended changes without touching the target.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) {
		e.dryRun = dryRun
	}
}

// New creates an Engine with no running watches.
func New(opts ...Option) *Engine {
	e := &Engine{
		report:  func(string, string) {},
		watches: make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetReporter replaces the reporter; used when the coordinator is created
// after the engine.
func (e *Engine) SetReporter(fn Reporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report = fn
}

// Start begins mirroring from into to for the rule id.
func (e *Engine) Start(ctx context.Context, id, from, to string, mode rule.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.watches[id]; ok {
		return fmt.Errorf("path '%s' is %w", from, ErrWatching)
	}

	src, err := existingDir(from)
	if err != nil {
		return fmt.Errorf("source path '%s' does not exist: %w", from, err)
	}
	dst, err := existingDir(to)
	if err != nil {
		return fmt.Errorf("target path '%s' does not exist: %w", to, err)
	}

	rw, err := rfsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := rw.AddRecursive(src); err != nil {
		rw.Close()
		return fmt.Errorf("failed to watch '%s': %w", from, err)
	}

	w := &watch{
		id:      id,
		from:    src,
		to:      dst,
		mode:    mode,
		watcher: rw,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.watches[id] = w
	go e.loop(w)

	log.Infof("Watching %s -> %s (%s)", src, dst, mode)
	return nil
}

// Stop ends the watch for id.
func (e *Engine) Stop(_ context.Context, id string) error {
	e.mu.Lock()
	w, ok := e.watches[id]
	if ok {
		delete(e.watches, id)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("id '%s' is %w", id, ErrNotWatching)
	}
	err := w.watcher.Close()
	close(w.stop)
	<-w.done
	log.Infof("Stopped watching %s", w.from)
	return err
}

// Watching reports whether id has a running watch.
func (e *Engine) Watching(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.watches[id]
	return ok
}

// Close stops every running watch.
func (e *Engine) Close() error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.watches))
	for id := range e.watches {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			return e.Stop(context.Background(), id)
		})
	}
	return g.Wait()
}

func (e *Engine) loop(w *watch) {
	defer close(w.done)
	log.Debugf("Event loop for %s started", w.from)
	for {
		select {
		case <-w.stop:
			log.Debugf("Event loop for %s stopped", w.from)
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				log.Debugf("Event loop for %s stopped", w.from)
				return
			}
			if err := e.handle(w, event); err != nil {
				log.Errorf("Error handling %s on %s: %v", event.Op, event.Name, err)
				e.reportError(w.id, err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("Error watching %s: %v", w.from, err)
			e.reportError(w.id, err)
		}
	}
}

func (e *Engine) reportError(id string, err error) {
	e.mu.Lock()
	report := e.report
	e.mu.Unlock()
	report(id, err.Error())
}

// handle applies one filesystem event to the target tree.
func (e *Engine) handle(w *watch, event fsnotify.Event) error {
	rel, err := filepath.Rel(w.from, event.Name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	if e.exclude.IsExcluded(rel) {
		log.Debugf("Excluded: %s", event.Name)
		return nil
	}
	target := filepath.Join(w.to, rel)

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return e.remove(target)
	case event.Op&fsnotify.Create != 0:
		return e.place(w.mode, event.Name, target)
	case event.Op&fsnotify.Write != 0:
		if w.mode == rule.Copy {
			return e.place(w.mode, event.Name, target)
		}
		return nil
	default:
		log.Debugf("Unhandled event %s on %s", event.Op, event.Name)
		return nil
	}
}

func (e *Engine) place(mode rule.Mode, src, target string) error {
	info, err := os.Lstat(src)
	if os.IsNotExist(err) {
		// Already gone again; a following remove event handles the target.
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		log.Debugf("Ignoring directory %s", src)
		return nil
	}

	if e.dryRun {
		log.Infof("[dry run] Would %s %s -> %s", mode, src, target)
		return nil
	}
	if mode == rule.Link {
		return linkFile(src, target)
	}
	return copyFile(src, target)
}

func (e *Engine) remove(target string) error {
	if e.dryRun {
		log.Infof("[dry run] Would delete %s", target)
		return nil
	}
	return deletePath(target)
}

func existingDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
