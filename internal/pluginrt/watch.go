package pluginrt

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces bursts of filesystem events (e.g. a plugin
// directory being copied in piece by piece) into a single Reconcile sync.
const debounceWindow = 250 * time.Millisecond

// Watch observes the runtime's plugins root for create/remove/write
// events and triggers a debounced Reconcile sync for each settled burst.
// It runs until stop is closed.
func (r *Runtime) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.root); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}
			timerC = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("plugin directory watch error", "err", err)

		case <-timerC:
			timerC = nil
			if _, err := r.Sync(Reconcile); err != nil {
				r.logger.Warn("reconcile sync after directory change failed", "err", err)
			}
		}
	}
}
