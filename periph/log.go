package periph

import (
	"log/slog"
	"os"
	"sync"
)

var (
	// logLevel controls the minimum level of the default logger.
	logLevel = new(slog.LevelVar)

	logMu         sync.RWMutex
	defaultLogger *slog.Logger
)

func init() {
	logLevel.Set(slog.LevelWarn)
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum level of the default logger.
func SetLogLevel(level slog.Level) { logLevel.Set(level) }

// SetLogger replaces the logger used by registries created afterwards
// without WithLogger. A nil logger restores the default.
func SetLogger(logger *slog.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}
	defaultLogger = logger
}

func currentLogger() *slog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return defaultLogger
}

// taggedLogger returns l, or the package logger, tagged with the component
// and registry name. Registries build it once.
func taggedLogger(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = currentLogger()
	}
	return l.With("component", "periph", "registry", name)
}
