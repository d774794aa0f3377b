package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openfroyo/rbkit/pkg/resource"
)

// ReloadDelay is how long Watch waits for changes to settle before reloading.
const ReloadDelay = 300 * time.Millisecond

// ApplyFunc receives freshly loaded definitions.
type ApplyFunc func(ctx context.Context, defs *Definitions) (int, error)

// ApplyTo returns an ApplyFunc applying definitions to m with b.
func ApplyTo(b *Builder, m *resource.Manager) ApplyFunc {
	return func(_ context.Context, defs *Definitions) (int, error) {
		resources, err := b.Apply(m, defs)
		return len(resources), err
	}
}

// Watch reloads the definitions in paths whenever a definition file under
// them changes and hands them to apply. Every reload attempt is recorded
// in the loader's telemetry. It returns once watching has started;
// watching stops when ctx is done or StopWatching is called.
func (l *Loader) Watch(ctx context.Context, paths []string, apply ApplyFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		dir := path
		if !info.IsDir() {
			dir = filepath.Dir(path)
		}
		if err := watchTree(watcher, dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.processEvents(ctx, watcher, paths, apply)

	l.logger.WithField("paths", paths).Info("watching resource definitions")
	return nil
}

func watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (l *Loader) processEvents(ctx context.Context, w *fsnotify.Watcher, paths []string, apply ApplyFunc) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		_ = w.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				// Files may land in the new directory before it is watched,
				// so it is reloaded as well.
				if err := watchTree(w, event.Name); err != nil {
					l.logger.WithError(err).WithField("dir", event.Name).Warn("failed to watch new directory")
					continue
				}
				l.logger.WithField("dir", event.Name).Debug("watching new directory")
			} else if !isDefinitionFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			} else {
				l.logger.WithField("file", event.Name).WithField("op", event.Op.String()).Debug("definition file changed")
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(ReloadDelay, func() {
				_ = l.Reload(ctx, paths, apply)
			})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Error("definition watcher error")
		}
	}
}

// Reload loads paths once and hands the result to apply, recording the
// outcome in the loader's telemetry.
func (l *Loader) Reload(ctx context.Context, paths []string, apply ApplyFunc) error {
	source := strings.Join(paths, ",")

	count, err := l.reload(ctx, paths, apply)
	if l.tel != nil {
		l.tel.Metrics.RecordConfigReload(err)
		_ = l.tel.Events.PublishConfigReloaded(source, count, err)
	}
	if err != nil {
		l.logger.WithError(err).WithField("source", source).Error("failed to reload resource definitions")
		return err
	}

	l.logger.WithField("source", source).WithField("resources", count).Info("resource definitions reloaded")
	return nil
}

func (l *Loader) reload(ctx context.Context, paths []string, apply ApplyFunc) (int, error) {
	defs, err := l.Load(ctx, paths)
	if err != nil {
		return 0, err
	}
	count, err := apply(ctx, defs)
	if err != nil {
		return 0, fmt.Errorf("failed to apply definitions: %w", err)
	}
	return count, nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}
