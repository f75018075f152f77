package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats its file.
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc applies a config that parsed and validated cleanly. Returning an
// error rejects it and the previous config stays current. It runs while the
// watcher is locked and must not call back into it.
type ReloadFunc func(*Config) error

// Watcher polls a config file and hands every new revision to a [ReloadFunc].
//
// A revision is identified by the file's content hash: touching the file
// without editing it is not a reload, and a revision that failed to parse or
// was rejected is not retried until the content changes again.
type Watcher struct {
	path     string
	interval time.Duration
	reload   ReloadFunc
	logger   *slog.Logger

	mu      sync.Mutex
	current *Config
	seen    revision
}

// revision is the last file state the watcher examined, accepted or not.
type revision struct {
	mtime time.Time
	sum   [sha256.Size]byte
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

// WithWatcherLogger sets the logger for reload messages. Default: slog.Default().
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher loads path as the baseline config. Nothing is polled until
// [Watcher.Run] or [Watcher.Poll] is called.
func NewWatcher(path string, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		reload:   reload,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, rev, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.seen = cfg, rev
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done. Failed polls are logged and the loop carries on.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Poll(); err != nil {
				w.logger.Warn("config reload skipped", "path", w.path, "err", err)
			}
		}
	}
}

// Poll checks the file once. It reports whether a new revision was accepted.
// An unreadable, invalid or rejected revision yields an error and leaves
// [Watcher.Current] unchanged.
func (w *Watcher) Poll() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if info.ModTime().Equal(w.seen.mtime) {
		return false, nil
	}
	cfg, rev, err := w.read()
	if err != nil {
		// Remember the broken revision so it is reported once.
		if rev.sum != w.seen.sum {
			w.seen = rev
			return false, err
		}
		w.seen = rev
		return false, nil
	}
	if rev.sum == w.seen.sum {
		w.seen = rev
		return false, nil
	}
	w.seen = rev

	diff := Diff(w.current, cfg)
	if w.reload != nil {
		if err := w.reload(cfg); err != nil {
			return false, fmt.Errorf("config: reload rejected: %w", err)
		}
	}
	w.current = cfg
	w.logger.Info("config reloaded",
		"path", w.path,
		"log_level_changed", diff.LogLevelChanged,
		"alignment_changed", diff.AlignmentChanged,
		"lexicon_changed", diff.LexiconChanged,
		"restart_required", diff.RestartRequired,
	)
	return true, nil
}

// read returns the parsed file with its revision. The revision is filled in
// whenever the file could be read, even if it does not parse.
func (w *Watcher) read() (*Config, revision, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	rev := revision{mtime: info.ModTime(), sum: sha256.Sum256(data)}
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, rev, err
	}
	return cfg, rev, nil
}
