package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on write and hands the new config to a
// callback. Reload failures are logged and the previous config stays live.
type Watcher struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	current *Config
}

func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, logger: logger}, nil
}

// Current returns the last successfully loaded config, or nil before the
// first reload.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Watch starts the watch loop. It returns once the watch is established; the
// loop stops when ctx is done or Close is called.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	w.logger.Info("watching config file for changes", slog.String("path", w.path))

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(w.path)
				if err != nil {
					w.logger.Error("failed to reload config",
						slog.String("error", err.Error()),
						slog.String("path", w.path))
					continue
				}
				w.mu.Lock()
				w.current = cfg
				w.mu.Unlock()
				w.logger.Info("config reloaded", slog.String("path", w.path))
				if onChange != nil {
					onChange(cfg)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}
