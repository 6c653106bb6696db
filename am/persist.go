package am

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

// MaxBackups is the number of rotating .backN copies kept for edited files
const MaxBackups = 3

// RotateBackups shifts path.back1..n-1 up by one and copies path to path.back1.
// A missing path is not an error.
func RotateBackups(path string, n int) error {
	if n <= 0 {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	oldest := fmt.Sprintf("%s.back%d", path, n)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete old backup %s", oldest)
	}

	for i := n - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.back%d", path, i)
		to := fmt.Sprintf("%s.back%d", path, i+1)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return errors.Wrapf(err, "failed to rotate %s to %s", from, to)
			}
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read file for backup")
	}
	if err := os.WriteFile(path+".back1", content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// BudgetUpdate carries the budget fields to change; nil fields are left alone
type BudgetUpdate struct {
	MaxDailyUSD     *float64
	MaxTotalUSD     *float64
	PauseOnExceeded *bool
}

// UpdateBudget edits the [budget] table of a TOML config file in place,
// keeping rotating backups. A running scheduler picks the change up through
// its ConfigSource on the next cycle.
func UpdateBudget(configPath string, update BudgetUpdate, watcher *ConfigWatcher) error {
	if filepath.Ext(configPath) != ".toml" {
		return errors.WithHint(
			errors.Newf("cannot edit %s: only TOML config files are supported", configPath),
			"edit the file by hand, the scheduler reloads it automatically")
	}

	doc := make(map[string]interface{})
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return errors.Wrapf(err, "failed to parse %s", configPath)
		}
	case os.IsNotExist(err):
	default:
		return errors.Wrapf(err, "failed to read %s", configPath)
	}

	budget, ok := doc["budget"].(map[string]interface{})
	if !ok {
		budget = make(map[string]interface{})
	}
	if update.MaxDailyUSD != nil {
		if *update.MaxDailyUSD < 0 {
			return errors.Wrapf(errors.ErrInvalidConfig, "budget.max_daily_usd must be >= 0, got %f", *update.MaxDailyUSD)
		}
		budget["max_daily_usd"] = *update.MaxDailyUSD
	}
	if update.MaxTotalUSD != nil {
		if *update.MaxTotalUSD < 0 {
			return errors.Wrapf(errors.ErrInvalidConfig, "budget.max_total_usd must be >= 0, got %f", *update.MaxTotalUSD)
		}
		budget["max_total_usd"] = *update.MaxTotalUSD
	}
	if update.PauseOnExceeded != nil {
		budget["pause_on_exceeded"] = *update.PauseOnExceeded
	}
	doc["budget"] = budget

	out, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := RotateBackups(configPath, MaxBackups); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	if watcher != nil {
		watcher.MarkOwnWrite()
	}
	if err := os.WriteFile(configPath, out, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}
