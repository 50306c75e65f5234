package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geotag/photomap/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/geotag/photomap/internal/upload"

// Attempt describes one finished upload.
type Attempt struct {
	Collection string
	ID         core.RecordID
	Bytes      int
	Duration   time.Duration
	Err        error
}

// Outcome classifies the attempt for metrics.
func (a Attempt) Outcome() string {
	switch {
	case a.Err == nil:
		return "success"
	case errors.Is(a.Err, core.ErrImageRead):
		return "image_read"
	case errors.Is(a.Err, core.ErrStoreWrite):
		return "store_write"
	case errors.Is(a.Err, core.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}

// Telemetry receives every upload attempt.
type Telemetry interface {
	RecordAttempt(ctx context.Context, a Attempt)
}

// NopTelemetry drops attempts.
type NopTelemetry struct{}

// RecordAttempt implements Telemetry.
func (NopTelemetry) RecordAttempt(context.Context, Attempt) {}

// Multi fans attempts out to several sinks.
type Multi []Telemetry

// RecordAttempt implements Telemetry.
func (m Multi) RecordAttempt(ctx context.Context, a Attempt) {
	for _, t := range m {
		t.RecordAttempt(ctx, a)
	}
}

// Metrics records attempts as OTel instruments on the global meter
// (no-op if not configured).
type Metrics struct {
	attempts metric.Int64Counter
	bytes    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates the upload instruments.
func NewMetrics() (*Metrics, error) {
	m := otel.Meter(instrumentationName)

	var (
		mt  Metrics
		err error
	)

	mt.attempts, err = m.Int64Counter(
		"upload.attempts",
		metric.WithDescription("Upload attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attempts counter: %w", err)
	}

	mt.bytes, err = m.Int64Counter(
		"upload.bytes",
		metric.WithDescription("Raw image bytes read for upload"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bytes counter: %w", err)
	}

	mt.duration, err = m.Float64Histogram(
		"upload.duration",
		metric.WithDescription("Upload wall time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &mt, nil
}

// RecordAttempt implements Telemetry.
func (m *Metrics) RecordAttempt(ctx context.Context, a Attempt) {
	attrs := metric.WithAttributes(
		attribute.String("collection", a.Collection),
		attribute.String("outcome", a.Outcome()),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.bytes.Add(ctx, int64(a.Bytes), attrs)
	m.duration.Record(ctx, a.Duration.Seconds(), attrs)
}
