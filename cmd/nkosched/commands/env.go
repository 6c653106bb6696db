package commands

import (
	"database/sql"
	"os"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/db"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/pulse/budget"
	"github.com/Diomandeee/learnnko-sub000/pulse/checkpoint"
	"github.com/Diomandeee/learnnko-sub000/pulse/jobs"
)

// ConfigPath is bound to the global --config flag
var ConfigPath string

// loadConfig reads the config once, without watching it
func loadConfig() (*am.Config, string, error) {
	path := am.ResolveConfigPath(ConfigPath)
	cfg, err := am.LoadFromFile(path)
	if err != nil {
		return nil, path, errors.WithHint(errors.MarkFatal(err),
			"check the file given with --config or $NKO_CONFIG")
	}
	return cfg, path, nil
}

// openConfigSource returns a hot-reloading source for the resolved config
// file. Without a file the defaults are served by a StaticSource.
func openConfigSource(log *zap.SugaredLogger) (am.ConfigSource, *am.Config, func(), error) {
	path := am.ResolveConfigPath(ConfigPath)
	if path == "" {
		cfg, err := am.LoadFromFile("")
		if err != nil {
			return nil, nil, nil, errors.MarkFatal(err)
		}
		log.Infow("No config file found, running on defaults")
		return am.NewStaticSource(cfg), cfg, func() {}, nil
	}

	fs, err := am.NewFileSource(path, log)
	if err != nil {
		return nil, nil, nil, errors.WithHint(err, "check the file given with --config or $NKO_CONFIG")
	}
	if err := fs.Watch(); err != nil {
		log.Warnw("Config watcher unavailable, relying on mtime polling",
			logger.FieldPath, path,
			logger.FieldError, err)
	}
	cfg, _, err := fs.Poll()
	if err != nil {
		_ = fs.Close()
		return nil, nil, nil, errors.MarkFatal(err)
	}
	return fs, cfg, func() { _ = fs.Close() }, nil
}

func checkpointStore(cfg *am.Config) *checkpoint.Store {
	return checkpoint.NewStore(cfg.Checkpoint.Path, cfg.Checkpoint.Backups, logger.ComponentLogger("pulse.checkpoint"))
}

// openLedger opens the ledger database, creating and migrating it when needed
func openLedger(cfg *am.Config) (*sql.DB, *budget.Ledger, error) {
	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.ComponentLogger("db"))
	if err != nil {
		return nil, nil, errors.WithHint(errors.MarkFatal(err), "check database.path in the config file")
	}
	ledger, err := budget.NewLedger(budget.NewSQLStore(database), logger.ComponentLogger("pulse.budget"))
	if err != nil {
		database.Close()
		return nil, nil, errors.MarkFatal(err)
	}
	return database, ledger, nil
}

// openLedgerIfExists is openLedger for read-only commands: a missing
// database file is not created
func openLedgerIfExists(cfg *am.Config) (*sql.DB, *budget.Ledger, error) {
	if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
		return nil, nil, nil
	}
	return openLedger(cfg)
}

func jobLoader(cfg *am.Config) (*jobs.Loader, jobs.Source, *jobs.Cache, error) {
	log := logger.ComponentLogger("pulse.jobs")
	src, err := jobs.NewSource(cfg.WorkSource, cfg.Orchestrator.APIKey, log)
	if err != nil {
		return nil, nil, nil, errors.MarkFatal(err)
	}
	cache := jobs.NewCache(cfg.WorkSource.CacheDir)
	return jobs.NewLoader(src, cache, log), src, cache, nil
}
