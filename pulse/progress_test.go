package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

func TestLogEmitter_RepeatedStageDropsToDebug(t *testing.T) {
	// Given an emitter on an observed logger at info level
	core, logs := observer.New(zapcore.InfoLevel)
	e := NewLogEmitter(zap.New(core).Sugar())

	// When the same stage is emitted three times
	e.EmitStage("BUDGET_PAUSED", "Daily budget reached")
	e.EmitStage("BUDGET_PAUSED", "Daily budget reached")
	e.EmitStage("BUDGET_PAUSED", "Daily budget reached")
	e.EmitStage("SELECTING_JOB", "Budget available")

	// Then only transitions reach info
	assert.Equal(t, 2, logs.Len())
}

func TestLogEmitter_ProgressAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := NewLogEmitter(zap.New(core).Sugar())

	e.EmitProgress(5, map[string]interface{}{"cost_usd": 2.0})
	e.EmitError("RECORDING", errors.New("timeout"))
	e.EmitInfo("hello")
	e.EmitComplete(map[string]interface{}{"reason": "work_exhausted"})

	entries := logs.All()
	assert.Len(t, entries, 4)
	assert.Equal(t, int64(5), entries[0].ContextMap()["processed"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestNopEmitter(t *testing.T) {
	var e ProgressEmitter = NopEmitter{}
	assert.NotPanics(t, func() {
		e.EmitStage("x", "y")
		e.EmitProgress(1, nil)
		e.EmitComplete(nil)
		e.EmitError("x", nil)
		e.EmitInfo("z")
	})
}
