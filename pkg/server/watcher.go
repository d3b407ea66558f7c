package server

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchLimits reloads the registry's limits when the limits file changes.
// The parent directory is watched rather than the file itself because
// atomic replacement via rename breaks a direct file watch. The returned
// function stops the watcher.
func (s *Server) watchLimits(ctx context.Context) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create limits watcher: %w", err)
	}

	dir := filepath.Dir(s.limitsFile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Base(s.limitsFile)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := s.registry.ReloadLimits(ctx); err != nil {
					s.logger.Error("limits reload failed", "error", err)
					continue
				}
				s.logger.Info("limits reloaded", "file", s.limitsFile)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("limits watcher error", "error", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
