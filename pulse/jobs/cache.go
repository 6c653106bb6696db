package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
)

// cachedList is the on-disk cache format
type cachedList struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Jobs      []Job     `json:"jobs"`
}

// Cache stores fetched job lists under dir, one file per source identity
type Cache struct {
	dir string
	now func() time.Time
}

// NewCache creates a cache rooted at dir
func NewCache(dir string) *Cache {
	return &Cache{dir: dir, now: time.Now}
}

// Path returns the cache file for a source identity
func (c *Cache) Path(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return filepath.Join(c.dir, "jobs-"+hex.EncodeToString(sum[:8])+".json")
}

// Get returns the cached list for identity; ok is false when none is cached
func (c *Cache) Get(identity string) (list []Job, fetchedAt time.Time, ok bool, err error) {
	data, err := os.ReadFile(c.Path(identity))
	if os.IsNotExist(err) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, errors.Wrap(err, "read job cache")
	}
	var cached cachedList
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, time.Time{}, false, errors.Wrap(err, "parse job cache")
	}
	if cached.Source != identity {
		return nil, time.Time{}, false, nil
	}
	return cached.Jobs, cached.FetchedAt, true, nil
}

// Put writes the list for identity atomically
func (c *Cache) Put(identity string, list []Job) error {
	data, err := json.MarshalIndent(cachedList{Source: identity, FetchedAt: c.now(), Jobs: list}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal job cache")
	}
	if err := os.MkdirAll(c.dir, am.DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "create job cache directory")
	}
	path := c.Path(identity)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, am.DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "write job cache")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "replace job cache")
	}
	return nil
}

// Remove deletes the cached list for identity
func (c *Cache) Remove(identity string) error {
	if err := os.Remove(c.Path(identity)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove job cache")
	}
	return nil
}

// Loader returns the run's job list: the cached copy when present, else a fresh fetch
type Loader struct {
	source Source
	cache  *Cache
	logger *zap.SugaredLogger
}

// NewLoader creates a loader
func NewLoader(source Source, cache *Cache, log *zap.SugaredLogger) *Loader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Loader{source: source, cache: cache, logger: log}
}

// Load returns the ordered job list. The source is only contacted when
// nothing is cached or refresh is set; a failed refresh falls back to the cache.
func (l *Loader) Load(ctx context.Context, refresh bool) ([]Job, error) {
	identity := l.source.Identity()

	cached, fetchedAt, ok, cacheErr := l.cache.Get(identity)
	if cacheErr != nil {
		l.logger.Warnw("Job cache unreadable, refetching", logger.FieldError, cacheErr)
	}
	if ok && !refresh {
		l.logger.Infow("Using cached job list",
			"source", identity,
			logger.FieldCount, len(cached),
			"fetched_at", fetchedAt)
		return cached, nil
	}

	fetched, err := l.source.Fetch(ctx)
	if err != nil {
		if ok {
			l.logger.Warnw("Job list refresh failed, using cached copy",
				"source", identity,
				logger.FieldError, err)
			return cached, nil
		}
		return nil, errors.WithHint(
			errors.MarkFatal(errors.Wrapf(err, "fetch job list from %s", identity)),
			"check work_source in the config file")
	}

	list := Normalize(fetched, l.logger)
	if err := l.cache.Put(identity, list); err != nil {
		l.logger.Warnw("Failed to cache job list", logger.FieldError, err)
	}
	l.logger.Infow("Fetched job list", "source", identity, logger.FieldCount, len(list))
	return list, nil
}

// Preview is Load without side effects: a fetched list is not cached
func (l *Loader) Preview(ctx context.Context, refresh bool) ([]Job, error) {
	identity := l.source.Identity()
	if !refresh {
		if cached, _, ok, err := l.cache.Get(identity); err == nil && ok {
			return cached, nil
		}
	}
	fetched, err := l.source.Fetch(ctx)
	if err != nil {
		return nil, errors.MarkFatal(errors.Wrapf(err, "fetch job list from %s", identity))
	}
	return Normalize(fetched, l.logger), nil
}

// Pending returns jobs in fetch order for which attempted is false
func Pending(list []Job, attempted func(id string) bool) []Job {
	out := make([]Job, 0, len(list))
	for _, j := range list {
		if !attempted(j.ID) {
			out = append(out, j)
		}
	}
	return out
}
