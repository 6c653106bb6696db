// Package pulse holds the pieces shared by the scheduler's subsystems.
package pulse

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// ProgressEmitter receives progress updates from the scheduler loop.
// Implementations must not block; the loop calls them inline.
type ProgressEmitter interface {
	// EmitStage announces a loop state transition
	EmitStage(stage string, message string)

	// EmitProgress announces a recorded dispatch with running totals
	EmitProgress(count int, metadata map[string]interface{})

	// EmitComplete announces the loop terminated
	EmitComplete(summary map[string]interface{})

	// EmitError announces a recorded failure
	EmitError(stage string, err error)

	// EmitInfo emits a general informational message
	EmitInfo(message string)
}

// LogEmitter writes progress to a structured logger.
// Repeated identical stages are logged at debug so a long pause does not flood the log.
type LogEmitter struct {
	logger    *zap.SugaredLogger
	mu        sync.Mutex
	lastStage string
}

// NewLogEmitter creates an emitter on log
func NewLogEmitter(log *zap.SugaredLogger) *LogEmitter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogEmitter{logger: log}
}

func (e *LogEmitter) EmitStage(stage, message string) {
	e.mu.Lock()
	repeat := stage == e.lastStage
	e.lastStage = stage
	e.mu.Unlock()

	if repeat {
		e.logger.Debugw(message, logger.FieldState, stage)
		return
	}
	e.logger.Infow(sym.Pulse+" "+message, logger.FieldState, stage)
}

func (e *LogEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	kv := make([]interface{}, 0, 2+2*len(metadata))
	kv = append(kv, logger.FieldProcessed, count)
	for k, v := range metadata {
		kv = append(kv, k, v)
	}
	e.logger.Infow(sym.Pulse+" Progress", kv...)
}

func (e *LogEmitter) EmitComplete(summary map[string]interface{}) {
	kv := make([]interface{}, 0, 2*len(summary))
	for k, v := range summary {
		kv = append(kv, k, v)
	}
	e.logger.Infow(sym.PulseClose+" Scheduler finished", kv...)
}

func (e *LogEmitter) EmitError(stage string, err error) {
	e.logger.Warnw("Job attempt failed", logger.FieldState, stage, logger.FieldError, err)
}

func (e *LogEmitter) EmitInfo(message string) {
	e.logger.Infow(message)
}

// NopEmitter discards all progress
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string)                 {}
func (NopEmitter) EmitProgress(int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{})      {}
func (NopEmitter) EmitError(string, error)                  {}
func (NopEmitter) EmitInfo(string)                          {}
