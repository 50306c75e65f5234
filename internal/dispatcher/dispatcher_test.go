package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	return d, logger
}

func TestDispatcher_SyncHandlerSeesPayload(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got any
	d.Register(":IMAGE:SET:", func(_ context.Context, e Event) (any, error) {
		got = e.Payload
		return "file:///tmp/a.jpg", nil
	})

	result, err := d.Dispatch(context.Background(), Event{Command: ":IMAGE:SET:", Payload: "a.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a.jpg" {
		t.Errorf("handler saw payload %v", got)
	}
	if result != "file:///tmp/a.jpg" {
		t.Errorf("unexpected result %v", result)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), Event{Command: ":NOPE:"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), ":NOPE:") {
		t.Errorf("error should name the command: %v", err)
	}
}

func TestDispatcher_Buffered(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	d.Register(":TELEMETRY:", func(_ context.Context, _ Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(context.Background(), Event{Command: ":TELEMETRY:"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != Queued {
			t.Errorf("expected %q, got %v", Queued, result)
		}
	}
	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	defer close(block)
	d.Register(":FULL:", func(_ context.Context, _ Event) (any, error) {
		started <- struct{}{}
		<-block
		return nil, nil
	}, Buffered(1))

	if _, err := d.Dispatch(context.Background(), Event{Command: ":FULL:"}); err != nil {
		t.Fatal(err)
	}
	<-started // worker holds the first event
	if _, err := d.Dispatch(context.Background(), Event{Command: ":FULL:"}); err != nil {
		t.Fatal(err)
	}

	_, err := d.Dispatch(context.Background(), Event{Command: ":FULL:"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcher_BlockingHonoursContext(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	defer close(block)
	d.Register(":BLOCKING:", func(_ context.Context, _ Event) (any, error) {
		started <- struct{}{}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	_, _ = d.Dispatch(context.Background(), Event{Command: ":BLOCKING:"})
	<-started
	_, _ = d.Dispatch(context.Background(), Event{Command: ":BLOCKING:"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.Dispatch(ctx, Event{Command: ":BLOCKING:"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the blocked dispatch to give up with the context, got %v", err)
	}
}

func TestDispatcher_Logged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":LOCATION:ACQUIRE:", func(_ context.Context, _ Event) (any, error) {
		return "ok", nil
	}, Logged())
	d.Register(":UPLOAD:", func(_ context.Context, _ Event) (any, error) {
		return nil, errors.New("store unreachable")
	}, Logged())

	if _, err := d.Dispatch(context.Background(), Event{Command: ":LOCATION:ACQUIRE:"}); err != nil {
		t.Fatal(err)
	}
	if got := logger.count("DEBUG: event complete"); got != 1 {
		t.Errorf("expected one completion log, got %d", got)
	}

	if _, err := d.Dispatch(context.Background(), Event{Command: ":UPLOAD:"}); err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if got := logger.count("ERROR: event failed"); got != 1 {
		t.Errorf("expected one failure log, got %d", got)
	}
}

func TestDispatcher_LoggedBufferedLogsOnWorker(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":TELEMETRY:", func(_ context.Context, _ Event) (any, error) {
		return nil, nil
	}, Buffered(4), Logged())

	if _, err := d.Dispatch(context.Background(), Event{Command: ":TELEMETRY:"}); err != nil {
		t.Fatal(err)
	}
	d.Close()

	if got := logger.count("DEBUG: event complete"); got != 1 {
		t.Errorf("expected the worker to log completion once, got %d", got)
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":IMAGE:CLEAR:", func(_ context.Context, _ Event) (any, error) { return nil, nil })

	if !d.HasHandler(":IMAGE:CLEAR:") {
		t.Error("expected handler to exist")
	}
	if d.HasHandler(":UPLOAD:") {
		t.Error("expected handler to not exist")
	}
}

func TestDispatcher_BufferedHandlerOutlivesCaller(t *testing.T) {
	d, _ := newTestDispatcher(t)

	got := make(chan error, 1)
	d.Register(":DETACHED:", func(ctx context.Context, _ Event) (any, error) {
		got <- ctx.Err()
		return nil, nil
	}, Buffered(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Dispatch(ctx, Event{Command: ":DETACHED:"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-got:
		if err != nil {
			t.Errorf("handler context should not be cancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(":DRAIN:", func(_ context.Context, _ Event) (any, error) {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		if _, err := d.Dispatch(context.Background(), Event{Command: ":DRAIN:"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	d.Close()
	d.Close()

	if processed.Load() != 5 {
		t.Errorf("expected 5 processed after close, got %d", processed.Load())
	}
	if depths := d.queueDepths(); depths[":DRAIN:"] != 0 {
		t.Errorf("expected empty queue, got %d", depths[":DRAIN:"])
	}

	_, err := d.Dispatch(context.Background(), Event{Command: ":DRAIN:"})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcher_StampsTimestamp(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var seen time.Time
	d.Register(":STAMP:", func(_ context.Context, e Event) (any, error) {
		seen = e.Timestamp
		return nil, nil
	})

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, _ = d.Dispatch(context.Background(), Event{Command: ":STAMP:", Timestamp: fixed})
	if !seen.Equal(fixed) {
		t.Errorf("explicit timestamp overwritten: %v", seen)
	}

	_, _ = d.Dispatch(context.Background(), Event{Command: ":STAMP:"})
	if seen.IsZero() {
		t.Error("expected dispatch to stamp the event")
	}
}
