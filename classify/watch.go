package classify

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the marker table from path whenever the file is written,
// created or renamed into place, until ctx is cancelled.
//
// onReload, if non-nil, is called after every reload attempt with the load
// error or nil. A table that fails to load or compile is ignored and the
// previous table stays active. Watch returns once the watcher is installed.
func (c *Classifier) Watch(ctx context.Context, path string, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory so editors that replace the file by rename are seen.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go c.watchLoop(ctx, watcher, path, onReload)
	return nil
}

func (c *Classifier) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, onReload func(error)) {
	defer watcher.Close()
	baseName := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != baseName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			err := c.reload(path)
			if onReload != nil {
				onReload(err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if onReload != nil {
				onReload(fmt.Errorf("watch %s: %w", path, err))
			}
		}
	}
}

func (c *Classifier) reload(path string) error {
	t, err := LoadTable(path)
	if err != nil {
		return err
	}
	return c.SetTable(t)
}
