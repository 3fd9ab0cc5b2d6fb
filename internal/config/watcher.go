package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lachlan-jones5/oh-my-opencode/internal/logging"
)

// watchDebounce coalesces the editor write/rename bursts a single save
// produces into one reload.
const watchDebounce = 250 * time.Millisecond

// Watch reloads the config file on change and calls onReload with each
// successfully loaded config. It blocks until ctx is done. A config that
// fails to load or validate is logged and skipped; the previous config
// stays in effect.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save
	// and a watch on the old inode goes stale.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-timerC:
			timerC = nil
			timer = nil
			cfg, err := Load(path)
			if err != nil {
				logging.BootError("config reload failed, keeping previous: %v", err)
				continue
			}
			logging.Boot("config reloaded from %s", path)
			onReload(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.BootError("config watcher: %v", err)
		}
	}
}
