package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/geotag/photomap/internal/dispatcher"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	duration  metric.Float64Histogram
}

// newInstruments creates the dispatcher instruments. depths feeds the
// per-command queue gauge.
func newInstruments(m metric.Meter, depths func() map[string]int) (*instruments, error) {
	var (
		in  instruments
		err error
	)

	queueSize, err := m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range depths() {
			o.ObserveInt64(queueSize, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, queueSize)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	if in.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Buffered events processed"),
	); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if in.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Events dropped due to a full queue"),
	); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if in.duration, err = m.Float64Histogram(
		"dispatcher.handle.duration",
		metric.WithDescription("Handler wall time for logged commands"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return &in, nil
}

func (in *instruments) observe(ctx context.Context, command string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	in.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}
