package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/logging"
	intOtel "github.com/geotag/photomap/internal/otel"

	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// app holds the process-wide services every subcommand shares.
type app struct {
	configDir string
	logLevel  string

	sessionStart time.Time
	logFile      *os.File
	logFilePath  string

	slogManager *logging.SlogManager
	logger      *slog.Logger
	otel        *intOtel.Provider

	// storage driver name stamped onto every log record
	storageType string
}

func newApp() *app {
	return &app{
		sessionStart: time.Now(),
		slogManager:  logging.NewSlogManager(),
		logger:       slog.Default(),
	}
}

// setup loads config and builds the logging pipeline. Logging starts on
// stderr so config problems are visible, then fans out to the session file.
func (a *app) setup() error {
	a.slogManager.Setup(os.Stderr, a.logLevel, nil)
	a.logger = a.slogManager.Logger()

	if err := config.Load(a.configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Debug("Loaded config", "file", viper.ConfigFileUsed())
	}

	level := a.logLevel
	if level == "" {
		level = config.GetString("logLevel")
	}
	a.storageType = config.GetStorageConfig().Type

	logsDir := config.GetString("logsDir")
	f, err := logging.OpenLogFile(logsDir, appName, a.sessionStart)
	if err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "dir", logsDir)
	} else {
		a.logFile = f
		a.logFilePath = f.Name()
	}

	// OTel exports to the session log file, so it starts after the file
	if otelCfg := config.GetOTelConfig(); otelCfg.Enabled {
		var w io.Writer = os.Stderr
		if a.logFile != nil {
			w = a.logFile
		}
		a.otel, err = intOtel.New(context.Background(), otelCfg, w, Version)
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	opts := []logging.Option{logging.WithContext(a.logContext)}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address)
		if err != nil {
			a.logger.Warn("Graylog disabled", "error", err)
		} else {
			opts = append(opts, logging.WithGELF(w))
		}
	}

	// Re-setup logging with file output and optional OTel
	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}
	var file io.Writer = os.Stderr
	if a.logFile != nil {
		file = io.MultiWriter(os.Stderr, a.logFile)
	}
	a.slogManager.Setup(file, level, otelLogProvider, opts...)
	a.logger = a.slogManager.Logger()
	slog.SetDefault(a.logger)

	if a.logFilePath != "" {
		a.logger.Debug("Session log file", "path", a.logFilePath)
	}
	return nil
}

func (a *app) logContext() []slog.Attr {
	attrs := []slog.Attr{slog.String("storage", a.storageType)}
	if id := viper.GetString("identity.default"); id != "" {
		attrs = append(attrs, slog.String("identity", id))
	}
	return attrs
}

// dataPath resolves name next to the session logs.
func (a *app) dataPath(name string) string {
	return filepath.Join(config.GetString("logsDir"), name)
}

// shutdown flushes telemetry and closes the session log.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.slogManager.Flush(ctx); err != nil {
		a.logger.Warn("Failed to flush logs", "error", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
