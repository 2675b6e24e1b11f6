// Package watch reruns a task when source files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/discovery"
)

const DefaultDebounce = 300 * time.Millisecond

// Watcher watches Root recursively. Only paths accepted by Match count as
// changes; a nil Match accepts everything.
type Watcher struct {
	Root     string
	Match    discovery.Predicate
	Debounce time.Duration
	Log      core.Logger
}

func New(root string, match discovery.Predicate, log core.Logger) *Watcher {
	if log == nil {
		log = core.NopLogger{}
	}
	return &Watcher{Root: root, Match: match, Debounce: DefaultDebounce, Log: log}
}

// Run calls fn once, then again each time a burst of changes settles. Events
// raised while fn runs are dropped: a preprocess pass and its restore write
// the very files being watched. fn errors are logged and watching goes on.
//
// Run returns nil when ctx is done.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.Root); err != nil {
		return err
	}

	run := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			w.Log.Error("Run failed, waiting for changes", "error", err)
		}
		w.settle(ctx, fw)
	}

	w.Log.Info(fmt.Sprintf("Watching %s", w.Root))
	run()

	var (
		timerC  <-chan time.Time
		changed = map[string]struct{}{}
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.follow(fw, ev)
			if !w.relevant(ev) {
				continue
			}
			changed[ev.Name] = struct{}{}
			timerC = time.After(w.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn("Watcher error", "error", err)

		case <-timerC:
			timerC = nil
			w.Log.Info(fmt.Sprintf("%d file(s) changed", len(changed)))
			changed = map[string]struct{}{}
			run()
		}
	}
}

// settle discards events until none arrive for one debounce window.
func (w *Watcher) settle(ctx context.Context, fw *fsnotify.Watcher) {
	quiet := time.NewTimer(w.Debounce)
	defer quiet.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-quiet.C:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.follow(fw, ev)
			quiet.Reset(w.Debounce)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return w.Match == nil || w.Match(ev.Name)
}

// follow starts watching directories created after Run began.
func (w *Watcher) follow(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if err := w.addRecursive(fw, ev.Name); err != nil {
			w.Log.Warn("Could not watch new directory", "path", ev.Name, "error", err)
		}
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &core.DiscoveryError{Path: path, Err: err}
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return &core.DiscoveryError{Path: path, Err: err}
		}
		return nil
	})
}
