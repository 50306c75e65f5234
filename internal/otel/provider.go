// Package otel owns the OpenTelemetry log pipeline. Records from the slog
// bridge are exported to the session log file and, when an endpoint is
// configured, to an OTLP/HTTP collector.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/geotag/photomap/internal/config"
)

// ErrNoExporter is returned when OTel is enabled with neither a log
// writer nor an OTLP endpoint.
var ErrNoExporter = errors.New("otel enabled but no log writer or endpoint configured")

// Provider wraps the SDK logger provider. The zero value is disabled.
type Provider struct {
	logProvider *sdklog.LoggerProvider
}

// New builds the log pipeline for cfg. logWriter receives pretty printed
// records; version is reported as service.version. A disabled config
// yields a Provider whose methods are no-ops.
func New(ctx context.Context, cfg config.OTelConfig, logWriter io.Writer, version string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	if logWriter != nil {
		proc, err := fileProcessor(cfg, logWriter)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdklog.WithProcessor(proc))
	}
	if cfg.Endpoint != "" {
		proc, err := otlpProcessor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdklog.WithProcessor(proc))
	}
	if len(opts) == 1 {
		return nil, ErrNoExporter
	}

	return &Provider{logProvider: sdklog.NewLoggerProvider(opts...)}, nil
}

func fileProcessor(cfg config.OTelConfig, w io.Writer) (sdklog.Processor, error) {
	exp, err := stdoutlog.New(stdoutlog.WithWriter(w), stdoutlog.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create file log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)), nil
}

func otlpProcessor(ctx context.Context, cfg config.OTelConfig) (sdklog.Processor, error) {
	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	exp, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)), nil
}

// LoggerProvider returns the provider for the otelslog bridge, or nil
// when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Enabled reports whether a log pipeline is running.
func (p *Provider) Enabled() bool {
	return p.logProvider != nil
}

// Flush exports pending records.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("log flush failed: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the exporters. Call it once on exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("log shutdown failed: %w", err)
	}
	return nil
}
