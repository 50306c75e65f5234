// internal/storage/memory/memory.go
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/pkg/core"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("memory backend closed")

// Option configures the backend.
type Option func(*Backend)

// WithClock replaces the server clock used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

type collection struct {
	records []core.PhotoRecord
	fanout  *storage.Fanout
}

// Backend keeps collections in process memory. Snapshots are published to
// subscribers while the write lock is held so they arrive in write order.
type Backend struct {
	now         func() time.Time
	collections map[string]*collection
	closed      bool
	mu          sync.RWMutex
}

// New creates a new memory backend
func New(opts ...Option) *Backend {
	b := &Backend{
		now:         time.Now,
		collections: make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init initializes the backend
func (b *Backend) Init(ctx context.Context) error {
	return nil
}

// Close stops every subscription.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, c := range b.collections {
		c.fanout.Close()
	}
	return nil
}

func (b *Backend) collectionLocked(name string) *collection {
	c, ok := b.collections[name]
	if !ok {
		c = &collection{fanout: storage.NewFanout()}
		b.collections[name] = c
	}
	return c
}

// Append stores record with a fresh time-ordered id and server timestamp.
func (b *Backend) Append(ctx context.Context, name string, record core.PhotoRecord) (core.RecordID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("%w: generating id: %v", core.ErrStoreWrite, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, ErrClosed)
	}

	record.ID = core.RecordID(id.String())
	record.CreatedAt = b.now()

	c := b.collectionLocked(name)
	c.records = append(c.records, record)
	c.fanout.Publish(storage.Sorted(c.records, storage.NewestFirst))

	return record.ID, nil
}

// Query returns a sorted snapshot of the collection.
func (b *Backend) Query(ctx context.Context, name string, order storage.OrderBy) ([]core.PhotoRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	c, ok := b.collections[name]
	if !ok {
		return []core.PhotoRecord{}, nil
	}
	return storage.Sorted(c.records, order), nil
}

// Subscribe delivers the current snapshot and every later one to onChange.
func (b *Backend) Subscribe(ctx context.Context, name string, order storage.OrderBy, onChange func([]core.PhotoRecord)) (storage.Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	c := b.collectionLocked(name)
	deliver := onChange
	if order != storage.NewestFirst {
		deliver = func(r []core.PhotoRecord) {
			storage.Sort(r, order)
			onChange(r)
		}
	}

	unsub := c.fanout.Add(storage.Sorted(c.records, storage.NewestFirst), deliver)
	return storage.BindContext(ctx, unsub), nil
}

// Len returns the number of records in a collection.
func (b *Backend) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if c, ok := b.collections[name]; ok {
		return len(c.records)
	}
	return 0
}

func (b *Backend) subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if c, ok := b.collections[name]; ok {
		return c.fanout.Len()
	}
	return 0
}
