package cliconfig

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vbfox/framelink/internal/ports"
	"github.com/vbfox/framelink/pkg/log"
)

// Watcher monitors a config file via fsnotify and reloads it on change, so
// settings like the log level can be adjusted without restarting a running
// monitor.
type Watcher struct {
	path     string
	base     Config
	onChange func(Config)
	logger   ports.Logger

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a watcher for the given config file. On every change the
// file is re-read, layered over base, validated, and passed to onChange.
func NewWatcher(path string, base Config, onChange func(Config), logger ports.Logger) *Watcher {
	return &Watcher{path: path, base: base, onChange: onChange, logger: logger}
}

// Run watches until the context is cancelled. A missing or unwatchable file
// disables watching without failing the caller.
func (w *Watcher) Run(ctx context.Context) {
	if w.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("config watcher disabled", log.Err(err))
		return
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("config watcher disabled", log.Err(err), log.String("path", w.path))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload(100 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) debounceReload(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(delay, w.reload)
}

func (w *Watcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", log.Err(err), log.String("path", w.path))
		return
	}

	cfg := w.base
	if err := ApplyFileConfig(&cfg, fc, nil); err != nil {
		w.logger.Warn("config reload rejected", log.Err(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("config reload rejected", log.Err(err))
		return
	}

	w.logger.Info("configuration reloaded", log.String("path", w.path))
	w.onChange(cfg)
}
