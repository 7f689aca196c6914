package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger zerolog.Logger
	once   sync.Once
)

// Get returns the shared logger instance, configured on first use.
func Get() zerolog.Logger {
	once.Do(setup)
	return logger
}

// For returns a logger tagged with a component name.
func For(component string) zerolog.Logger {
	return Get().With().Str("component", component).Logger()
}

func setup() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	level := zerolog.InfoLevel
	if os.Getenv("CHATCORE_DEBUG") == "1" {
		level = zerolog.DebugLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}

	// An optional log file mirrors everything written to stderr.
	if path := os.Getenv("CHATCORE_LOG_FILE"); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
				w = zerolog.MultiLevelWriter(w, f)
			}
		}
	}

	logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}
