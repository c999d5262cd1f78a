package devserver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
)

// Binding maps changes to files under Root matching any of Patterns to Action.
// Changed paths are slash-separated and relative to Root.
type Binding struct {
	Name     string
	Root     string
	Patterns []string
	Action   func(ctx context.Context, changed []string) error
}

func (b Binding) matches(rel string) bool {
	for _, p := range b.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

type watcher struct {
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	entries []*entry
}

// entry debounces one binding. While its action runs, further changes are
// collected and trigger exactly one rerun afterwards.
type entry struct {
	binding  Binding
	absRoot  string
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	changed map[string]struct{}
	running bool
	rerun   bool
}

func newWatcher(bindings []Binding, debounce time.Duration, logger *slog.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.InternalError("failed to create file watcher").WithCause(err).Build()
	}
	w := &watcher{fsw: fsw, logger: logger}
	watched := map[string]bool{}
	for _, b := range bindings {
		abs, err := filepath.Abs(b.Root)
		if err != nil {
			_ = fsw.Close()
			return nil, errors.FileSystemError("failed to resolve watch root").
				WithContext("path", b.Root).
				WithCause(err).
				Build()
		}
		w.entries = append(w.entries, &entry{
			binding:  b,
			absRoot:  abs,
			debounce: debounce,
			logger:   logger.With(logfields.Task(b.Name)),
			changed:  map[string]struct{}{},
		})
		if watched[abs] {
			continue
		}
		watched[abs] = true
		if st, err := os.Stat(abs); err != nil || !st.IsDir() {
			logger.Debug("Watch root missing, not watching", logfields.Root(b.Root))
			continue
		}
		addDirsRecursive(fsw, abs, logger)
	}
	return w, nil
}

func (w *watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", logfields.Error(err))
		}
	}
}

func (w *watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || shouldIgnoreEvent(ev.Name) {
		return
	}
	w.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			// Directories created or moved in arrive as a single event, so
			// their contents are dispatched here.
			addDirsRecursive(w.fsw, ev.Name, w.logger)
			w.dispatchTree(ctx, ev.Name)
			return
		}
	}
	w.dispatch(ctx, ev.Name)
}

func (w *watcher) dispatchTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !shouldIgnoreEvent(path) {
			w.dispatch(ctx, path)
		}
		return nil
	})
}

func (w *watcher) dispatch(ctx context.Context, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	for _, e := range w.entries {
		rel, err := filepath.Rel(e.absRoot, abs)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		if e.binding.matches(rel) {
			e.trigger(ctx, rel)
		}
	}
}

func (w *watcher) close() {
	for _, e := range w.entries {
		e.stop()
	}
	_ = w.fsw.Close()
}

func (e *entry) trigger(ctx context.Context, rel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changed[rel] = struct{}{}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, func() { e.fire(ctx) })
}

func (e *entry) fire(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.rerun = true
		e.mu.Unlock()
		return
	}
	if len(e.changed) == 0 || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(e.changed))
	for p := range e.changed {
		changed = append(changed, p)
	}
	sort.Strings(changed)
	e.changed = map[string]struct{}{}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("Change detected", logfields.Files(len(changed)))
	if err := e.binding.Action(ctx, changed); err != nil {
		e.logger.Warn("Watch action failed", logfields.Error(err))
	}

	e.mu.Lock()
	e.running = false
	again := e.rerun
	e.rerun = false
	e.mu.Unlock()
	if again {
		e.fire(ctx)
	}
}

func (e *entry) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
}

func addDirsRecursive(w *fsnotify.Watcher, root string, logger *slog.Logger) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				logger.Warn("watch add failed", slog.String("dir", path), logfields.Error(err))
			}
		}
		return nil
	})
}

// shouldIgnoreEvent returns true for filesystem events that should not trigger rebuilds.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	// Hidden files, including .DS_Store and emacs lock files (.#name).
	if strings.HasPrefix(base, ".") {
		return true
	}

	// Editor temp/swap files
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	return base == "Thumbs.db" || base == "4913"
}
