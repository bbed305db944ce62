package docdb

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the in-memory state whenever the snapshot file is modified
// on disk, until ctx is cancelled. Commits made through this Database also
// trigger a reload; that reload is a no-op since the file already matches
// memory.
func (db *Database) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(db.path); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					if err := db.Sync(); err != nil {
						db.log.WarnContext(ctx, "Failed to reload after file change", "err", err)
					} else {
						db.log.DebugContext(ctx, "Reloaded after file change", "file", event.Name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				db.log.WarnContext(ctx, "Error watching database file", "err", err)
			}
		}
	}()
	return nil
}
