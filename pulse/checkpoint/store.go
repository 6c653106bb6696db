package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
)

// compatibleSchemas accepts any checkpoint written by this major version
var compatibleSchemas = mustConstraint("^1.0.0")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

// Store reads and writes the checkpoint file.
//
// Save writes a temp file, fsyncs it, rotates .back1..N and renames the temp
// file over the primary, so a crash leaves either the old or the new
// checkpoint. Load falls back to the newest readable backup when the primary
// exists but is unreadable.
type Store struct {
	path    string
	backups int
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewStore creates a store for path keeping backups rotating copies
func NewStore(path string, backups int, log *zap.SugaredLogger) *Store {
	return NewStoreWithClock(path, backups, log, time.Now)
}

// NewStoreWithClock creates a store with an injectable clock (for testing)
func NewStoreWithClock(path string, backups int, log *zap.SugaredLogger, now func() time.Time) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{path: path, backups: backups, logger: log, now: now}
}

// Path returns the primary checkpoint file
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a primary checkpoint is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the persisted state, or a zero state when none exists.
// The error is Fatal when checkpoint files exist but none is usable.
func (s *Store) Load() (*State, error) {
	state, err := readState(s.path)
	if err == nil {
		return state, nil
	}
	// Save never removes the primary, so a missing file means a fresh
	// installation or an explicit reset, not a crash.
	if os.IsNotExist(errors.UnwrapAll(err)) {
		return NewState(), nil
	}

	primaryErr := err
	s.logger.Warnw("Checkpoint unreadable, trying backups",
		logger.FieldPath, s.path,
		logger.FieldError, err)

	for i := 1; i <= s.backups; i++ {
		backup := backupPath(s.path, i)
		state, err := readState(backup)
		if err != nil {
			if !os.IsNotExist(errors.UnwrapAll(err)) {
				s.logger.Warnw("Checkpoint backup unreadable", logger.FieldPath, backup, logger.FieldError, err)
			}
			continue
		}
		s.logger.Warnw("Restored checkpoint from backup",
			logger.FieldPath, backup,
			logger.FieldProcessed, state.TotalJobsProcessed)
		return state, nil
	}

	return nil, errors.WithHint(
		errors.MarkFatal(errors.Mark(errors.Wrapf(primaryErr, "no usable checkpoint at %s", s.path), errors.ErrCorruptState)),
		"inspect the file, or run `nkosched reset` to start over")
}

func readState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse %s", path), errors.ErrCorruptState)
	}
	if err := checkSchema(state.SchemaVersion); err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s", path)
	}
	state.reindex()
	if err := state.Validate(); err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s", path)
	}
	return &state, nil
}

func checkSchema(version string) error {
	if version == "" {
		// written before schema versions were recorded
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "schema_version %q", version), errors.ErrCorruptState)
	}
	if !compatibleSchemas.Check(v) {
		return errors.Mark(errors.Newf("unsupported schema_version %s (supported %s)", v, compatibleSchemas), errors.ErrCorruptState)
	}
	return nil
}

// Save persists state atomically and stamps LastCheckpoint.
// On failure the previous checkpoint stays in place and the error is transient.
func (s *Store) Save(state *State) error {
	now := s.now()
	snapshot := state.Clone()
	snapshot.SchemaVersion = SchemaVersion
	snapshot.LastCheckpoint = &now

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.MarkTransient(errors.Wrap(err, "marshal checkpoint"))
	}

	if err := s.writeAtomic(data); err != nil {
		return errors.MarkTransient(err)
	}
	state.SchemaVersion = SchemaVersion
	state.LastCheckpoint = &now
	return nil
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "create checkpoint directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp checkpoint")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp checkpoint")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp checkpoint")
	}
	if err := os.Chmod(tmpName, am.DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "chmod temp checkpoint")
	}

	if err := am.RotateBackups(s.path, s.backups); err != nil {
		// a missing backup is not worth losing the new checkpoint over
		s.logger.Warnw("Checkpoint backup rotation failed", logger.FieldPath, s.path, logger.FieldError, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "replace checkpoint")
	}
	return nil
}

// Reset removes the primary checkpoint. With all set the backups go too.
func (s *Store) Reset(all bool) error {
	paths := []string{s.path}
	if all {
		for i := 1; i <= s.backups; i++ {
			paths = append(paths, backupPath(s.path, i))
		}
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	return nil
}

func backupPath(path string, i int) string {
	return fmt.Sprintf("%s.back%d", path, i)
}
