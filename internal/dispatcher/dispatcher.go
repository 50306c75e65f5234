// Package dispatcher routes capture screen commands to their handlers.
// Handlers run on the caller's goroutine unless registered Buffered, in
// which case a per-command worker drains a queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned for a command nobody registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned by a non-blocking buffered handler.
	ErrQueueFull = errors.New("queue full")
)

// Queued is the result of a successful buffered dispatch.
const Queued = "queued"

// Event is a pipeline command, e.g. a capture or an upload request.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result. Buffered handlers
// receive a context detached from the dispatching caller's cancellation.
type HandlerFunc func(context.Context, Event) (any, error)

// Logger is the subset of *slog.Logger the dispatcher needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a buffered handler wait for queue space instead of dropping.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs each event and records its duration.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// route is one registered command.
type route struct {
	handle HandlerFunc
	queue  chan queued // nil for sync handlers
}

type queued struct {
	ctx   context.Context
	event Event
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	inst   *instruments

	mu     sync.RWMutex
	routes map[string]*route
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher. A nil logger falls back to slog.Default.
// Instruments come from the global OTel meter.
func New(logger Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	inst, err := newInstruments(meter(), d.queueDepths)
	if err != nil {
		return nil, err
	}
	d.inst = inst
	return d, nil
}

// Register binds h to command, replacing any earlier registration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &route{handle: h}
	if o.logged {
		r.handle = d.withLogging(command, r.handle)
	}
	if o.bufferSize > 0 {
		r.queue = make(chan queued, o.bufferSize)
		d.startWorker(command, r.queue, r.handle)
		r.handle = d.enqueue(command, r.queue, o.blocking)
	}

	d.mu.Lock()
	d.routes[command] = r
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	r, ok := d.routes[e.Command]
	closed := d.closed
	d.mu.RUnlock()

	switch {
	case closed:
		return nil, ErrClosed
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	return r.handle(ctx, e)
}

// HasHandler reports whether command is registered.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Close stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) queueDepths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	depths := make(map[string]int)
	for cmd, r := range d.routes {
		if r.queue != nil {
			depths[cmd] = len(r.queue)
		}
	}
	return depths
}

func (d *Dispatcher) startWorker(command string, queue <-chan queued, h HandlerFunc) {
	attrs := metric.WithAttributes(attribute.String("command", command))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for q := range queue {
			_, _ = h(q.ctx, q.event)
			d.inst.processed.Add(q.ctx, 1, attrs)
		}
	}()
}

// enqueue is the caller-facing half of a buffered route. The read lock
// keeps Close from closing the queue under a pending send.
func (d *Dispatcher) enqueue(command string, queue chan<- queued, blocking bool) HandlerFunc {
	attrs := metric.WithAttributes(attribute.String("command", command))
	return func(ctx context.Context, e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}

		q := queued{ctx: context.WithoutCancel(ctx), event: e}
		if blocking {
			select {
			case queue <- q:
				return Queued, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		select {
		case queue <- q:
			return Queued, nil
		default:
			d.inst.dropped.Add(ctx, 1, attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "queuedFor", start.Sub(e.Timestamp))

		result, err := h(ctx, e)
		elapsed := time.Since(start)
		d.inst.observe(ctx, command, elapsed, err)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", elapsed, "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", elapsed)
		}
		return result, err
	}
}
