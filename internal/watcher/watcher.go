// Package watcher watches inbox directories with fsnotify and hands new documents to ingestion.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher reports files that appear or are rewritten under its roots once they stop
// changing. Removals are ignored because the index is append-only.
type Watcher struct {
	recursive bool
	onFiles   func(paths []string)
	accept    Filter
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	fw       *fsnotify.Watcher
	roots    []*root
	settling map[string]*time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

// root is a watched directory and the directories fsnotify was told about for it.
type root struct {
	path string
	dirs []string
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithFilter replaces the default ExtensionFilter(DefaultExtensions...).
func WithFilter(f Filter) WatcherOption {
	return func(w *Watcher) {
		if f != nil {
			w.accept = f
		}
	}
}

// WithExtensions is WithFilter(ExtensionFilter(exts...)).
func WithExtensions(exts ...string) WatcherOption {
	return WithFilter(ExtensionFilter(exts...))
}

// WithDebounce sets how long a file must stay quiet before it is reported.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. onFiles receives settled files; a directory scan
// reports all of its matches in one call.
func NewWatcher(roots []string, recursive bool, onFiles func(paths []string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		recursive: recursive,
		onFiles:   onFiles,
		accept:    ExtensionFilter(DefaultExtensions...),
		debounce:  defaultDebounce,
		settling:  make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}
	for _, p := range roots {
		w.roots = append(w.roots, &root{path: filepath.Clean(p)})
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers every root, creating missing ones, and watches until ctx is cancelled
// or Stop is called. Starting twice is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fw != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, r := range w.roots {
		if r.dirs, err = w.register(fw, r.path, true); err != nil {
			_ = fw.Close()
			return err
		}
	}
	w.fw = fw
	if w.logger != nil {
		w.logger.Debug("watcher started", zap.Strings("roots", w.paths()), zap.Bool("recursive", w.recursive))
	}
	go w.loop(ctx, fw)
	return nil
}

// register adds dir, and its subdirectories when recursive, to fw and returns what it added.
func (w *Watcher) register(fw *fsnotify.Watcher, dir string, create bool) ([]string, error) {
	if create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if !w.recursive {
		return []string{dir}, fw.Add(dir)
	}
	var added []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if err := fw.Add(p); err != nil {
			return err
		}
		added = append(added, p)
		return nil
	})
	return added, err
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	p := filepath.Clean(ev.Name)
	r := w.rootOf(p)
	if r == nil {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			w.enter(r, p)
		} else if w.accept(p) {
			w.settle(p)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.mu.Lock()
		if t, ok := w.settling[p]; ok {
			t.Stop()
			delete(w.settling, p)
		}
		w.mu.Unlock()
	}
}

// enter starts watching a directory created under r and reports what it already holds,
// since files may land before the watch does.
func (w *Watcher) enter(r *root, dir string) {
	w.mu.Lock()
	if w.fw != nil {
		added, err := w.register(w.fw, dir, false)
		r.dirs = append(r.dirs, added...)
		if err != nil && w.logger != nil {
			w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
		}
	}
	w.mu.Unlock()
	w.report(dir)
}

// settle (re)starts the quiet timer for p; p is reported when it fires.
func (w *Watcher) settle(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.settling[p]; ok {
		t.Stop()
	}
	w.settling[p] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.settling, p)
		w.mu.Unlock()
		if w.onFiles != nil {
			w.onFiles([]string{p})
		}
	})
}

func (w *Watcher) rootOf(p string) *root {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.roots {
		if within(r.path, p) {
			return r
		}
	}
	return nil
}

// scan returns the accepted regular files under dir, descending only when recursive.
func (w *Watcher) scan(dir string) []string {
	var found []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return nil
		case d.IsDir():
			if p != dir && !w.recursive {
				return filepath.SkipDir
			}
		case d.Type().IsRegular() && w.accept(p):
			found = append(found, p)
		}
		return nil
	})
	return found
}

// report hands every accepted file under dir to onFiles in one call.
func (w *Watcher) report(dir string) {
	files := w.scan(dir)
	if w.logger != nil {
		w.logger.Debug("watcher scanned directory", zap.String("dir", dir), zap.Int("files", len(files)))
	}
	if len(files) > 0 && w.onFiles != nil {
		w.onFiles(files)
	}
}

// AddDirectory starts watching dir as a new root. With syncExisting its current files are
// reported in the background. Adding a watched root, or adding before Start, does nothing.
func (w *Watcher) AddDirectory(dir string, syncExisting bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fw == nil || w.find(abs) >= 0 {
		return nil
	}
	added, err := w.register(w.fw, abs, true)
	if err != nil {
		return err
	}
	w.roots = append(w.roots, &root{path: abs, dirs: added})
	if w.logger != nil {
		w.logger.Debug("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	}
	if syncExisting {
		go w.report(abs)
	}
	return nil
}

// RemoveDirectory stops watching a root. Documents already ingested stay indexed.
func (w *Watcher) RemoveDirectory(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.find(abs)
	if w.fw == nil || i < 0 {
		return nil
	}
	for _, d := range w.roots[i].dirs {
		_ = w.fw.Remove(d)
	}
	w.roots = append(w.roots[:i], w.roots[i+1:]...)
	if w.logger != nil {
		w.logger.Debug("watcher directory removed", zap.String("path", abs))
	}
	return nil
}

func (w *Watcher) find(p string) int {
	for i, r := range w.roots {
		if r.path == p {
			return i
		}
	}
	return -1
}

func (w *Watcher) paths() []string {
	out := make([]string, len(w.roots))
	for i, r := range w.roots {
		out[i] = r.path
	}
	return out
}

// Directories returns the watched roots in the order they were added.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths()
}

// SyncExistingFiles reports the files already present in every root, one call per root.
// Call it after Start.
func (w *Watcher) SyncExistingFiles() {
	for _, dir := range w.Directories() {
		w.report(dir)
	}
}

// Stop closes the fsnotify watcher and drops files still settling.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fw == nil {
		w.mu.Unlock()
		return
	}
	for p, t := range w.settling {
		t.Stop()
		delete(w.settling, p)
	}
	_ = w.fw.Close()
	w.fw = nil
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
