package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Log file handle
	logFile *os.File
)

// InitLogger configures the global zerolog logger. Output goes to stderr
// and, when logPath is set, is also appended to that file. An unknown level
// falls back to info.
func InitLogger(logPath string, logLevel string) error {
	if level, err := zerolog.ParseLevel(strings.ToLower(logLevel)); err == nil && logLevel != "" {
		zerolog.SetGlobalLevel(level)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if logPath != "" {
		logDir := filepath.Dir(logPath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = file

		// Console output for humans, JSON lines in the file.
		out = zerolog.MultiLevelWriter(out, file)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// CloseLogger closes the log file if open
func CloseLogger() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
