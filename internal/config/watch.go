package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce batches the burst of events editors emit on save.
const reloadDebounce = 150 * time.Millisecond

// Reload is one config re-read triggered by a file change.
type Reload struct {
	Config Config
	Err    error
}

// Watch re-loads path whenever it changes and delivers the result on the
// returned channel. The parent directory is watched so rename-on-save
// editors are picked up. The channel closes when ctx is done.
func Watch(ctx context.Context, path string, defaults Config) (<-chan Reload, error) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch config dir %q: %w", dir, err)
	}

	out := make(chan Reload, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		timer := time.NewTimer(reloadDebounce)
		timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				timer.Reset(reloadDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				deliver(ctx, out, Reload{Err: fmt.Errorf("watch config: %w", err)})
			case <-timer.C:
				cfg, err := Load(path, defaults)
				deliver(ctx, out, Reload{Config: cfg, Err: err})
			}
		}
	}()
	return out, nil
}

// deliver replaces an unread pending reload with the newer one.
func deliver(ctx context.Context, out chan Reload, r Reload) {
	select {
	case <-out:
	default:
	}
	select {
	case out <- r:
	case <-ctx.Done():
	}
}
