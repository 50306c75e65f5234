package storage

import (
	"context"
	"sync"

	"github.com/geotag/photomap/pkg/core"
)

// Fanout delivers collection snapshots to subscribers. Each subscriber has
// its own goroutine and a one-slot mailbox: a newer snapshot replaces an
// undelivered older one, so slow subscribers never block writers and always
// converge on the latest state.
type Fanout struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	mailbox  chan []core.PhotoRecord
	done     chan struct{}
	once     sync.Once
	onChange func([]core.PhotoRecord)
}

// NewFanout creates an empty fan-out.
func NewFanout() *Fanout {
	return &Fanout{subs: make(map[int]*subscriber)}
}

// Add registers onChange and returns its Unsubscribe. A non-nil initial
// snapshot is delivered before anything published later.
func (f *Fanout) Add(initial []core.PhotoRecord, onChange func([]core.PhotoRecord)) Unsubscribe {
	s := &subscriber{
		mailbox:  make(chan []core.PhotoRecord, 1),
		done:     make(chan struct{}),
		onChange: onChange,
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = s
	if initial != nil {
		s.offer(initial)
	}
	f.mu.Unlock()

	go s.run()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		s.stop()
	}
}

// Len returns the number of live subscribers.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Publish hands snapshot to every subscriber without blocking. Subscribers
// receive their own copy. Callers serialize Publish to keep snapshots in order.
func (f *Fanout) Publish(snapshot []core.PhotoRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.subs {
		cp := make([]core.PhotoRecord, len(snapshot))
		copy(cp, snapshot)
		s.offer(cp)
	}
}

// Close stops every subscriber.
func (f *Fanout) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[int]*subscriber)
	f.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (s *subscriber) offer(snapshot []core.PhotoRecord) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.mailbox <- snapshot:
			return
		default:
		}
		// mailbox full, drop the stale snapshot
		select {
		case <-s.mailbox:
		default:
		}
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case snap := <-s.mailbox:
			select {
			case <-s.done:
				return
			default:
			}
			s.onChange(snap)
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// BindContext wraps unsub so it runs once, either when called or when ctx is done.
func BindContext(ctx context.Context, unsub Unsubscribe) Unsubscribe {
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			unsub()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return cancel
}
