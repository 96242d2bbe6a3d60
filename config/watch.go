package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"lautenbacher.net/gospi/util"
)

// Watch re-reads cfile whenever it changes and publishes every version
// that validates on updates. Broken edits are logged and skipped, so the
// consumer keeps running on the last good configuration. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, cfile string, updates *util.AtomicEvent[*Config]) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace the file instead of writing it, so the directory is
	// watched rather than the file itself.
	target := filepath.Clean(cfile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			conf, err := ReadConfig(cfile)
			if err != nil {
				slog.Error("Ignoring config change", "file", cfile, "error", err)
				continue
			}
			slog.Info("Config file changed, reloading", "file", cfile)
			updates.Send(conf)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}
