package main

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"Fleetbench/pkg/config"
)

// ConfigWatcher reloads the experiment configuration when its file changes.
// Invalid edits are logged and the previous configuration stays active.
type ConfigWatcher struct {
	app      *App
	path     string
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	mu       sync.Mutex
	debounce time.Duration

	// onReload is called after every reload attempt
	onReload func(cfg *config.Config, err error)
}

// NewConfigWatcher creates a watcher for the app's config file
func NewConfigWatcher(app *App) *ConfigWatcher {
	return &ConfigWatcher{
		app:      app,
		path:     app.ConfigPath(),
		stopCh:   make(chan struct{}),
		debounce: 300 * time.Millisecond,
	}
}

// Start begins watching. The directory is watched rather than the file so
// that editors replacing the file by rename are noticed.
func (w *ConfigWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path == "" {
		return errors.New("no config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		w.watcher = nil
		return err
	}

	LogInfo("config_watcher").Str("path", w.path).Msg("Started watching config file")

	go w.watch(watcher)
	return nil
}

// Stop stops watching
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
		w.watcher = nil
		LogInfo("config_watcher").Msg("Stopped watching config file")
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		LogWarn("config_watcher").Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous config")
	} else {
		w.app.SetConfig(cfg)
		LogInfo("config_watcher").Int("apps", len(cfg.Apps)).Msg("Config reloaded")
	}
	if w.onReload != nil {
		w.onReload(cfg, err)
	}
}

// watch is the main watch loop
func (w *ConfigWatcher) watch(watcher *fsnotify.Watcher) {
	var debounceTimer *time.Timer
	name := filepath.Clean(w.path)

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			LogError("config_watcher").Err(err).Msg("Watcher error")
		}
	}
}
