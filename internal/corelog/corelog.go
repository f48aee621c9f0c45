// Package corelog provides a thin, component-prefixed wrapper over the
// standard library logger for library-internal events that never cross a
// component boundary (e.g. a vault-open quarantine, a degraded
// sync-history write).
package corelog

import "log"

// Logger writes lines prefixed with a fixed component tag, e.g. "[vaultstore] ".
type Logger struct {
	prefix string
}

// New returns a Logger for component, e.g. New("vaultstore").
func New(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) Printf(format string, args ...any) {
	log.Printf(l.prefix+format, args...)
}

func (l *Logger) Println(args ...any) {
	log.Println(append([]any{l.prefix}, args...)...)
}
