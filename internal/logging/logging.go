package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// OpenLogFile creates logsDir if needed and opens a fresh session log file.
func OpenLogFile(logsDir, appName string, sessionStart time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	path := LogFilePath(logsDir, appName, sessionStart)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// NewGELFWriter dials a Graylog UDP input.
func NewGELFWriter(addr string) (io.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to graylog at %s: %w", addr, err)
	}
	w.Facility = "photomap"
	return w, nil
}

// NewZerolog builds the zerolog logger used by components that log through
// zerolog, such as the InfluxDB telemetry manager.
func NewZerolog(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stdout
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
