package skills

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce window: editors fire bursts of events per save.
const reloadDebounce = 500 * time.Millisecond

// Watch reloads the runner whenever an entry directly in the skills directory
// is created, written, removed, or renamed. Only the root is watched: changes
// to files inside a skill's own directory do not trigger a reload. Blocks
// until ctx is cancelled; callers run it in its own goroutine.
func Watch(ctx context.Context, runner *Runner) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(runner.dir); err != nil {
		return err
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			runner.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("skills: watcher error", "error", err)
		}
	}
}
