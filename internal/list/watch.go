package list

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type (
	// The Watcher type reloads a Store when one of its file sources changes on disk.
	Watcher struct {
		store    *Store
		watcher  *fsnotify.Watcher
		files    map[string]struct{}
		debounce time.Duration
		logger   *slog.Logger
	}
)

const defaultDebounce = 500 * time.Millisecond

// NewWatcher returns a new instance of the Watcher type that watches every file source currently in store. Changes
// are only picked up once Run is called. Directories are watched rather than the files themselves so that lists
// replaced by renaming over them are still seen.
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		store:    store,
		watcher:  fw,
		files:    make(map[string]struct{}),
		debounce: defaultDebounce,
		logger:   logger,
	}

	dirs := make(map[string]struct{})
	for _, source := range store.Sources() {
		if source.Type != TypeFile {
			continue
		}

		path, err := filepath.Abs(source.Location)
		if err != nil {
			fw.Close()
			return nil, err
		}

		w.files[path] = struct{}{}
		dirs[filepath.Dir(path)] = struct{}{}
	}

	for dir := range dirs {
		if err = fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	return w, nil
}

// Run handles filesystem events until ctx is cancelled. Bursts of events are coalesced into a single reload.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if !w.relevant(event) {
				continue
			}

			w.logger.With("file", event.Name, "op", event.Op.String()).Debug("block list changed")
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.With("error", err).Warn("error watching block lists")
		case <-timer.C:
			if err := w.store.Reload(ctx); err != nil {
				w.logger.With("error", err).Error("failed to reload block lists")
				continue
			}

			w.logger.With("entries", w.store.Len()).Info("reloaded block lists")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}

	path, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}

	_, ok := w.files[path]
	return ok
}
