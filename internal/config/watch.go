package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceDelay coalesces the double-write bursts editors produce on save.
const debounceDelay = 200 * time.Millisecond

// Watch reloads the store whenever path is rewritten. Malformed content is
// logged and the previous snapshot retained. The watcher shuts down when ctx
// is cancelled.
func Watch(ctx context.Context, path string, store *Store, log zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				pending = time.After(debounceDelay)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			case <-pending:
				pending = nil
				cfg, err := Load(path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("config reload failed, keeping previous")
					continue
				}
				store.Set(Normalize(cfg))
				log.Info().Str("path", path).Msg("config reloaded")
			}
		}
	}()
	return nil
}
