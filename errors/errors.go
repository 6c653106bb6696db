// Package errors provides error handling for nkosched.
//
// This package re-exports github.com/cockroachdb/errors (stack traces, hints,
// details, marks) and layers the scheduler's error taxonomy on top of it.
//
// Every error the scheduler acts on belongs to one of three kinds:
//
//	Transient     - a single dispatch or persistence attempt failed; record and continue
//	BudgetPaused  - spend ceilings reached; not a failure, the loop waits
//	Fatal         - no ground truth to run on; exit before the loop starts
//
// Kinds are attached with marks so they survive wrapping:
//
//	err := errors.MarkFatal(errors.Wrap(err, "load checkpoint"))
//	if errors.KindOf(err) == errors.KindFatal { ... }
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Kind classifies an error by how the scheduler reacts to it.
type Kind int

const (
	// KindUnknown is returned for nil errors and errors without a mark.
	KindUnknown Kind = iota
	KindTransient
	KindBudgetPaused
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindBudgetPaused:
		return "budget_paused"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind markers. Match with errors.Is or KindOf.
var (
	ErrTransient    = New("transient")
	ErrBudgetPaused = New("budget paused")
	ErrFatal        = New("fatal")
)

// Common sentinel errors.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidConfig indicates a configuration snapshot failed validation
	ErrInvalidConfig = New("invalid config")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrCorruptState indicates a persisted file could not be decoded
	ErrCorruptState = New("corrupt state")
)

// MarkTransient tags err as a per-attempt failure that must not stop the loop.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrTransient)
}

// MarkBudgetPaused tags err as a budget pause.
func MarkBudgetPaused(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrBudgetPaused)
}

// MarkFatal tags err as a startup error the process cannot run past.
func MarkFatal(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrFatal)
}

// KindOf reports the kind attached to err. Fatal wins over the other marks.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case Is(err, ErrFatal):
		return KindFatal
	case Is(err, ErrBudgetPaused):
		return KindBudgetPaused
	case Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsFatal checks if err carries the fatal mark.
func IsFatal(err error) bool {
	return err != nil && Is(err, ErrFatal)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewFatalf creates a fatal error with a formatted message.
func NewFatalf(format string, args ...interface{}) error {
	return MarkFatal(Newf(format, args...))
}
