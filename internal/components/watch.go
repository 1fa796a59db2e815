package components

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/georgeannie/mlops-framework/internal/logging"
)

// DefaultDebounce collapses editor save bursts into one registration pass.
const DefaultDebounce = 200 * time.Millisecond

// #region watch
// Watch calls fn once, then again whenever a descriptor in dir matching
// pattern is written, created, renamed or removed. Events closer together
// than debounce trigger a single call. The template and rendered pipeline
// files are ignored. Watch returns when ctx is done or fn fails.
func Watch(ctx context.Context, dir, pattern string, debounce time.Duration, fn func(context.Context) error) error {
	if pattern == "" {
		pattern = DescriptorPattern
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := logging.New("components.watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if err := fn(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(dir, pattern, event) {
				continue
			}
			log.Debug("descriptor changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)
		case <-timer.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}

func relevant(dir, pattern string, event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	if excludedDescriptors[filepath.Base(event.Name)] {
		return false
	}
	rel, err := filepath.Rel(dir, event.Name)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// #endregion watch
