package scheduler

import (
	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// pulseLogger gives loop lifecycle events distinct levels:
// DEBUG for opening (✿), WARN for closing (❀), INFO for loop activity (꩜).
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an opening event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.PulseOpen+" "+msg, withSymbol(sym.PulseOpen, keysAndValues)...)
}

// Closing logs a closing event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.PulseClose+" "+msg, withSymbol(sym.PulseClose, keysAndValues)...)
}

// Pulse logs loop activity
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(sym.Pulse+" "+msg, withSymbol(sym.Pulse, keysAndValues)...)
}

func withSymbol(symbol string, keysAndValues []interface{}) []interface{} {
	return append([]interface{}{logger.FieldSymbol, sym.Name(symbol)}, keysAndValues...)
}
