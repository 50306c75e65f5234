// Package collection keeps a live, sorted view of the photos collection.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/pkg/core"
)

// Source is the read side of a document store.
type Source interface {
	Subscribe(ctx context.Context, collection string, order storage.OrderBy, onChange func([]core.PhotoRecord)) (storage.Unsubscribe, error)
}

// Subscriber mounts live views of one collection.
type Subscriber struct {
	source     Source
	collection string
	order      storage.OrderBy
	logger     *slog.Logger
}

// New creates a subscriber for collection, newest first.
func New(source Source, collection string, logger *slog.Logger) *Subscriber {
	if collection == "" {
		collection = core.DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{source: source, collection: collection, order: storage.NewestFirst, logger: logger}
}

// Mount subscribes once. The view stays live until Close or ctx is done.
func (s *Subscriber) Mount(ctx context.Context) (*View, error) {
	v := &View{
		order: s.order,
		ready: make(chan struct{}),
	}

	unsub, err := s.source.Subscribe(ctx, s.collection, s.order, v.apply)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", s.collection, err)
	}
	v.unsub = unsub
	s.logger.Debug("Collection mounted", "collection", s.collection)
	return v, nil
}

// View is a mounted collection. Every emission fully replaces its records.
type View struct {
	mu        sync.RWMutex
	order     storage.OrderBy
	records   []core.PhotoRecord
	index     map[core.RecordID]int
	listeners []func([]core.PhotoRecord)
	ready     chan struct{}
	readyOnce sync.Once
	unsub     storage.Unsubscribe
	closeOnce sync.Once
	closed    bool
}

func (v *View) apply(records []core.PhotoRecord) {
	sorted := storage.Sorted(records, v.order)
	index := make(map[core.RecordID]int, len(sorted))
	for i, r := range sorted {
		index[r.ID] = i
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.records = sorted
	v.index = index
	listeners := append([]func([]core.PhotoRecord){}, v.listeners...)
	v.mu.Unlock()

	v.readyOnce.Do(func() { close(v.ready) })

	for _, l := range listeners {
		l(v.Records())
	}
}

// OnChange registers a listener for every new sequence.
func (v *View) OnChange(fn func([]core.PhotoRecord)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Ready is closed once the first snapshot has arrived.
func (v *View) Ready() <-chan struct{} {
	return v.ready
}

// WaitReady blocks until the first snapshot or ctx is done.
func (v *View) WaitReady(ctx context.Context) error {
	select {
	case <-v.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Records returns a copy of the current sequence.
func (v *View) Records() []core.PhotoRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]core.PhotoRecord(nil), v.records...)
}

// Count returns the number of records.
func (v *View) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// CountLabel renders the header count.
func (v *View) CountLabel() string {
	return core.CountLabel(v.Count())
}

// Get looks a record up by id.
func (v *View) Get(id core.RecordID) (core.PhotoRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	i, ok := v.index[id]
	if !ok {
		return core.PhotoRecord{}, false
	}
	return v.records[i], true
}

// Select builds the map route for id.
func (v *View) Select(id core.RecordID) (core.MapRoute, error) {
	rec, ok := v.Get(id)
	if !ok {
		return core.MapRoute{}, fmt.Errorf("photo %s: %w", id, core.ErrNotFound)
	}
	return core.RouteFor(rec), nil
}

// Close unsubscribes. Further emissions are ignored.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.listeners = nil
		v.mu.Unlock()
		if v.unsub != nil {
			v.unsub()
		}
	})
}
