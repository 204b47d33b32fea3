package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/huamanraj/project-management-api/pkg/observability"
)

// Watcher reloads the config file when it changes on disk. Gateway
// credentials rotate this way without a restart; consumers subscribe via
// OnReload and must treat the callback as potentially concurrent with
// request handling.
type Watcher struct {
	path     string
	base     Config
	onReload func(*Config)
	logger   *observability.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for path. base is the config loaded at
// startup; each reload re-applies the file on top of a copy of it.
func NewWatcher(path string, base *Config, onReload func(*Config), logger *observability.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, not the file. Editors and secret mounts replace
	// the file by rename, which drops a watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{
		path:     path,
		base:     *base,
		onReload: onReload,
		logger:   logger,
		watcher:  fsw,
	}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
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
			// Writers may emit several events per save; reload once.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg := w.base
	if err := cfg.MergeFile(w.path); err != nil {
		w.logger.WithError(err).Error("Config reload failed, keeping previous config")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.WithError(err).Error("Reloaded config invalid, keeping previous config")
		return
	}
	w.logger.WithField("path", w.path).Info("Config reloaded")
	w.onReload(&cfg)
}
