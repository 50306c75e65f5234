package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// SlogManager manages slog-based logging with optional OTel and GELF sinks.
type SlogManager struct {
	logger *slog.Logger
	level  slog.Level

	// flushed on shutdown
	logProvider *sdklog.LoggerProvider
}

// Option adds an extra sink or decoration to Setup.
type Option func(*setupOptions)

type setupOptions struct {
	gelf    io.Writer
	context ContextProvider
}

// WithGELF adds a JSON handler writing to a GELF writer.
func WithGELF(w io.Writer) Option {
	return func(o *setupOptions) {
		o.gelf = w
	}
}

// WithContext stamps every record with attributes from provider.
func WithContext(provider ContextProvider) Option {
	return func(o *setupOptions) {
		o.context = provider
	}
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup (re)builds the logger. Records go to file, or to stderr when file
// is nil, since stdout carries command output. GELF and OTel sinks are
// added when configured. Setup may be called again once config is loaded.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...Option) {
	var so setupOptions
	for _, opt := range opts {
		opt(&so)
	}
	m.logProvider = provider
	m.level = parseLevel(level)

	if file == nil {
		file = os.Stderr
	}
	sinks := []slog.Handler{slog.NewTextHandler(file, m.handlerOptions())}
	if so.gelf != nil {
		sinks = append(sinks, slog.NewJSONHandler(so.gelf, m.handlerOptions()))
	}
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler("photomap", otelslog.WithLoggerProvider(provider)))
	}

	m.logger = slog.New(&stampHandler{inner: newTee(sinks...), provider: so.context})
	m.logger.Debug("Logging initialized", "level", m.level, "sinks", len(sinks))
}

// handlerOptions applies the level and renders timestamps in UTC.
func (m *SlogManager) handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: m.level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key != slog.TimeKey {
				return a
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
			}
			return a
		},
	}
}

// Level returns the level set by the last Setup.
func (m *SlogManager) Level() slog.Level {
	return m.level
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
