package am

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

// ConfigSource supplies the current configuration snapshot.
//
// Poll returns the snapshot to use for the next cycle and whether it differs
// from the one returned by the previous call. On a failed reload Poll returns
// the previous valid snapshot together with the error; callers log and carry on.
type ConfigSource interface {
	Poll() (cfg *Config, changed bool, err error)
}

// StaticSource always returns the same snapshot. Replace swaps it and makes
// the next Poll report a change.
type StaticSource struct {
	mu      sync.Mutex
	cfg     *Config
	pending bool
}

// NewStaticSource returns a source serving cfg
func NewStaticSource(cfg *Config) *StaticSource {
	return &StaticSource{cfg: cfg}
}

// Poll implements ConfigSource
func (s *StaticSource) Poll() (*Config, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.pending
	s.pending = false
	return s.cfg, changed, nil
}

// Replace installs a new snapshot
func (s *StaticSource) Replace(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.pending = true
}

// FileSource reloads a config file when its change marker moves.
//
// The marker is the file's modification time; an optional fsnotify watcher
// sets a dirty flag so edits that keep the same mtime (coarse filesystems)
// are still picked up. The marker advances even when a reload fails, so a
// broken file is reported once rather than on every cycle.
type FileSource struct {
	path    string
	logger  *zap.SugaredLogger
	current *Config
	marker  time.Time
	dirty   atomic.Bool
	watcher *ConfigWatcher
}

// NewFileSource loads path and returns a source positioned on it.
// The initial load must succeed; there is no previous snapshot to fall back to.
func NewFileSource(path string, logger *zap.SugaredLogger) (*FileSource, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, errors.MarkFatal(err)
	}
	fs := &FileSource{
		path:    path,
		logger:  logger,
		current: cfg,
	}
	if info, err := os.Stat(path); err == nil {
		fs.marker = info.ModTime()
	}
	return fs, nil
}

// Watch starts an fsnotify watcher that marks the source dirty on writes.
// Polling by mtime keeps working if the watcher cannot be created.
func (fs *FileSource) Watch() error {
	w, err := NewConfigWatcher(fs.path, fs.logger)
	if err != nil {
		return err
	}
	w.OnChange(func() { fs.dirty.Store(true) })
	w.Start()
	fs.watcher = w
	return nil
}

// Watcher returns the underlying watcher, nil if Watch was not called
func (fs *FileSource) Watcher() *ConfigWatcher {
	return fs.watcher
}

// Close stops the watcher if any
func (fs *FileSource) Close() error {
	if fs.watcher == nil {
		return nil
	}
	return fs.watcher.Stop()
}

// Path returns the watched file
func (fs *FileSource) Path() string {
	return fs.path
}

// Poll implements ConfigSource. Only the scheduler goroutine calls it.
func (fs *FileSource) Poll() (*Config, bool, error) {
	info, err := os.Stat(fs.path)
	if err != nil {
		return fs.current, false, errors.Wrapf(err, "stat config %s", fs.path)
	}

	dirty := fs.dirty.Swap(false)
	if !dirty && info.ModTime().Equal(fs.marker) {
		return fs.current, false, nil
	}
	fs.marker = info.ModTime()

	cfg, err := LoadFromFile(fs.path)
	if err != nil {
		return fs.current, false, errors.Wrap(err, "config reload rejected, keeping previous snapshot")
	}

	fs.current = cfg
	fs.logger.Infow("Config reloaded",
		"path", fs.path,
		"config", cfg.String())
	return cfg, true, nil
}
