// Package sym defines the symbols nkosched prints in logs and CLI output.
// They are stable across log sinks so that log lines can be filtered by symbol.
package sym

// Scheduler lifecycle symbols.
const (
	Pulse      = "꩜" // loop activity: dispatch, pacing, budget
	PulseOpen  = "✿" // startup, session start, resume
	PulseClose = "❀" // drain, final checkpoint, session end
	DB         = "⊔" // ledger and checkpoint storage
	AM         = "≡" // configuration and hot reload
	IX         = "⨳" // work source fetch and job cache
)

// Names maps each symbol to a short name used in log fields and status output.
var Names = map[string]string{
	Pulse:      "pulse",
	PulseOpen:  "open",
	PulseClose: "close",
	DB:         "db",
	AM:         "am",
	IX:         "ix",
}

// Name returns the short name for a symbol, or the symbol itself if unknown.
func Name(symbol string) string {
	if n, ok := Names[symbol]; ok {
		return n
	}
	return symbol
}
