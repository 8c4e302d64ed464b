package rulesfile

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads a rules file whenever it changes and hands the parsed
// table to a callback. A file that fails to load keeps the previous
// table in effect.
type Watcher struct {
	path     string
	onReload func(canvaskit.Rules)
	logger   canvaskit.Logger
}

func NewWatcher(path string, onReload func(canvaskit.Rules), logger canvaskit.Logger) *Watcher {
	return &Watcher{path: path, onReload: onReload, logger: logger}
}

// Watch blocks until the context is cancelled. The parent directory is
// watched rather than the file itself, because editors and config
// rollouts typically replace the file instead of writing in place.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	filename := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	w.logf("watching %s for rule table changes", w.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logf("rules watcher error: %v", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) reload() {
	rules, err := Load(w.path)
	if err != nil {
		w.logf("rules reload skipped: %v", err)
		return
	}
	w.logf("rules reloaded from %s (%d sources)", w.path, len(rules))
	w.onReload(rules)
}

func (w *Watcher) logf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Printf(format, args...)
}
