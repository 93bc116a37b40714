package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ApplyLevelFile reads a level name ("debug", "info", ...) from path and
// applies it. An empty file leaves the level unchanged.
func ApplyLevelFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read level file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	level, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	SetLevel(level)
	return nil
}

// WatchLevelFile applies the level in path and re-applies it whenever the
// file is written, until ctx is done. The parent directory is watched so
// editors that replace the file are handled.
func WatchLevelFile(ctx context.Context, path string) error {
	if err := ApplyLevelFile(path); err != nil && !os.IsNotExist(err) {
		Warn("[Logger] initial level file not applied", String("path", path), ErrorField(err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := ApplyLevelFile(path); err != nil {
					Warn("[Logger] level file ignored", String("path", path), ErrorField(err))
					continue
				}
				Info("[Logger] log level changed", zap.Stringer("level", Level()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				Warn("[Logger] watcher error", ErrorField(err))
			}
		}
	}()
	return nil
}
