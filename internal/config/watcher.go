package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls when no interval is
// configured.
const DefaultWatchInterval = 5 * time.Second

// Change is one accepted configuration reload.
type Change struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file and reports edits that parse and validate.
// The modification time gates reading; a content hash filters touches and
// rewrites of identical bytes. Changes whose [Diff] is empty, such as edited
// comments, are adopted silently.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(Change)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	hash    [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for reload outcomes.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path and returns a Watcher reporting later edits to
// onChange. Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(Change), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.hash, w.mtime = cfg, hash, mtime
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled. onChange runs on the polling goroutine.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ch, ok := w.check(); ok && w.onChange != nil {
				w.onChange(ch)
			}
		}
	}
}

// check reports a change when the file holds a new valid config.
func (w *Watcher) check() (Change, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return Change{}, false
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if unchanged {
		return Change{}, false
	}

	cfg, hash, mtime, err := w.read()
	if err != nil {
		w.log.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		// Remember the mtime so a broken file is reported once, not every poll.
		w.mu.Lock()
		w.mtime = info.ModTime()
		w.mu.Unlock()
		return Change{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.mtime = mtime
	if hash == w.hash {
		return Change{}, false
	}
	old := w.current
	w.current, w.hash = cfg, hash

	d := Diff(old, cfg)
	if d.Empty() {
		w.log.Debug("config watcher: file changed without effective changes", "path", w.path)
		return Change{}, false
	}
	w.log.Info("config watcher: configuration reloaded", "path", w.path)
	return Change{Old: old, New: cfg, Diff: d}, true
}

// read loads, validates and hashes the file.
func (w *Watcher) read() (*Config, [sha256.Size]byte, time.Time, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
