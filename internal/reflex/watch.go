package reflex

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 300 * time.Millisecond

// Watch reloads the layer whenever either file is edited outside the process.
// It blocks until ctx is done.
func (l *Layer) Watch(ctx context.Context) error {
	dir := filepath.Dir(l.correctionsPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic renames replace the inode of the file.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Debug("Watching reflex files", "dir", dir)

	names := map[string]bool{
		filepath.Base(l.correctionsPath): true,
		filepath.Base(l.ignorePath):      true,
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !names[filepath.Base(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Reflex watcher error", "err", err)

		case <-timer.C:
			l.Reload()
		}
	}
}
