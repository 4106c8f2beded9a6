// Package watch delivers debounced rebuild ticks when build inputs change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/qiniu/x/log"
)

// DefaultDebounce is the quiet period after the last event before a tick
// fires, long enough to coalesce an editor's write-then-rename burst.
const DefaultDebounce = 300 * time.Millisecond

// inputPatterns select the files whose changes invalidate a build.
var inputPatterns = []string{"**/*.go", "**/go.mod", "**/go.sum"}

// Watcher watches package directories recursively and coalesces bursts of
// input changes into single rebuild ticks.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	ticks    chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New watches dirs and their subdirectories for build input changes.
// Hidden and testdata directories are skipped; the go tool does not read
// them. A debounce of zero or less falls back to DefaultDebounce.
func New(dirs []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start filesystem watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: debounce,
		ticks:    make(chan struct{}, 1),
	}
	for _, dir := range dirs {
		if err := w.addRecursive(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run blocks until ctx is cancelled, turning filesystem events into
// debounced ticks on the Ticks channel.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("filesystem event channel closed")
			}
			w.handle(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("filesystem error channel closed")
			}
			log.Warnf("watch: %v", err)
		}
	}
}

// Ticks delivers rebuild signals. The channel holds at most one pending
// tick, so a burst of changes collapses into a single rebuild.
func (w *Watcher) Ticks() <-chan struct{} { return w.ticks }

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.fsw.Close()
}

// relevantOps are the operations that can change build inputs; chmod noise
// is not one of them.
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

func (w *Watcher) handle(evt fsnotify.Event) {
	if evt.Op&relevantOps == 0 {
		return
	}
	// Directories created under a watched tree are watched from then on.
	if evt.Has(fsnotify.Create) {
		w.maybeAddDir(evt.Name)
	}
	if !w.relevant(evt.Name) {
		return
	}
	w.mu.Lock()
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.tick)
	} else {
		w.timer.Reset(w.debounce)
	}
	w.mu.Unlock()
}

func (w *Watcher) tick() {
	select {
	case w.ticks <- struct{}{}:
	default:
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

// relevant reports whether a change to path invalidates the build.
func (w *Watcher) relevant(path string) bool {
	rel := path
	if r, err := filepath.Rel(w.root, path); err == nil {
		rel = r
	}
	rel = filepath.ToSlash(rel)
	for _, elem := range strings.Split(rel, "/") {
		if skippedDir(elem) {
			return false
		}
	}
	for _, pat := range inputPatterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// skippedDir reports path elements whose subtrees are neither watched nor
// relevant.
func skippedDir(name string) bool {
	if name == "testdata" {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("watch: skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skippedDir(d.Name()) {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || skippedDir(filepath.Base(path)) {
		return
	}
	if err := w.addRecursive(path); err != nil {
		log.Warnf("watch: %v", err)
	}
}
