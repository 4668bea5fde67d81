package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

const reloadDebounce = 200 * time.Millisecond

// Holder holds the current configuration and reloads it when the file changes.
// A reload that fails to parse or validate keeps the previous configuration.
type Holder struct {
	mu      sync.RWMutex
	current *Config
	path    string

	listenersMu sync.Mutex
	listeners   []func(*Config)
}

// NewHolder creates a holder with the initially loaded configuration.
func NewHolder(initial *Config, path string) *Holder {
	return &Holder{current: initial, path: path}
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to be called with every successfully reloaded configuration.
func (h *Holder) OnReload(fn func(*Config)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload reads the file again and swaps the configuration in.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.current = cfg
	h.mu.Unlock()

	h.listenersMu.Lock()
	listeners := append([]func(*Config){}, h.listeners...)
	h.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}

	zlog.Info().Msgf("config reloaded: path=%s", h.path)
	return nil
}

// Watch reloads the configuration on file changes until ctx is done.
// The parent directory is watched so that editors replacing the file
// are picked up too.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create config watcher")
	}
	target := filepath.Clean(h.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "failed to watch config directory")
	}

	zlog.Info().Msgf("config watcher started: path=%s", target)
	go h.watchLoop(ctx, watcher, target)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer func() { _ = watcher.Close() }()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			zlog.Debug().Msg("config watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := h.Reload(); err != nil {
					zlog.Warn().Err(err).Msgf("config reload failed, keeping previous config: path=%s", target)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Err(err).Msg("config watcher error")
		}
	}
}
