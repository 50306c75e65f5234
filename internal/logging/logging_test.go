package logging

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		want    string
	}{
		{"basic path", "logs", filepath.Join("logs", "photomap.20260212_213836.log")},
		{"relative path with dot", "./logs", filepath.Join(".", "logs", "photomap.20260212_213836.log")},
		{"absolute path", filepath.Join("/var", "log", "photomap"), filepath.Join("/var", "log", "photomap", "photomap.20260212_213836.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "photomap", sessionStart))
		})
	}
}

func TestOpenLogFile_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	f, err := OpenLogFile(dir, "photomap", time.Now())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	assert.FileExists(t, f.Name())
}

func TestNewZerolog_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "warn")

	logger.Info().Msg("hidden")
	logger.Warn().Str("bucket", "uploads").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"bucket":"uploads"`)
}

func TestNewZerolog_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "nonsense")

	logger.Debug().Msg("debug hidden")
	logger.Info().Msg("info shown")

	assert.NotContains(t, buf.String(), "debug hidden")
	assert.Contains(t, buf.String(), "info shown")
}
