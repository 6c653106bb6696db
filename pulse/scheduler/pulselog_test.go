package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPulseLogger_LevelsAndSymbolField(t *testing.T) {
	// Given a pulse logger over an observed core
	core, logs := observer.New(zapcore.DebugLevel)
	l := pulseLogger{zap.New(core).Sugar()}

	// When each lifecycle event is logged
	l.Starting("Scheduler starting", "jobs", 3)
	l.Pulse("Dispatching")
	l.Closing("Draining")

	// Then levels follow the lifecycle and each entry names its symbol
	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "open", entries[0].ContextMap()["symbol"])
	assert.Equal(t, int64(3), entries[0].ContextMap()["jobs"])
	assert.Equal(t, "pulse", entries[1].ContextMap()["symbol"])
	assert.Equal(t, "close", entries[2].ContextMap()["symbol"])
}
