package userstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flowdeck/flowdeck/pkg/observability"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads role assignments from a JSON file whenever it changes, so
// operators can re-map roles without restarting the server.
type Watcher struct {
	store   *Store
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching the assignments file. The file holds a flat
// JSON object mapping usernames or emails to role names. It is applied once
// immediately if present.
func NewWatcher(store *Store, path string, logger *observability.Logger) (*Watcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory, not the file: editors and config tooling commonly
	// replace the file, which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		store:   store,
		path:    path,
		logger:  logger,
		watcher: fsw,
		done:    make(chan struct{}),
	}

	if err := w.apply(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("initial role assignment load failed")
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.apply(); err != nil {
				w.logger.WithError(err).Warn("failed to reload role assignments")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("role assignment watcher error")
		case <-w.done:
			return
		}
	}
}

// apply reads the assignments file and pushes it into the store.
func (w *Watcher) apply() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	var assignments map[string]string
	if err := json.Unmarshal(data, &assignments); err != nil {
		return fmt.Errorf("invalid role assignments file: %w", err)
	}

	if err := w.store.UpdateRoleAssignments(assignments); err != nil {
		return err
	}
	w.logger.WithField("count", len(assignments)).Info("applied role assignments")
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
