// Package gormstorage implements storage.Backend on any gorm dialector.
// SQL has no push notifications, so subscriptions are refreshed after every
// local append and by a poll loop that picks up other writers.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/geotag/photomap/internal/database"
	"github.com/geotag/photomap/internal/model"
	"github.com/geotag/photomap/internal/model/convert"
	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/pkg/core"
	"github.com/google/uuid"

	"gorm.io/gorm"
)

// ErrNoDatabase is returned when the backend was built without a connection.
var ErrNoDatabase = errors.New("gorm backend has no database")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB           *gorm.DB
	Logger       *slog.Logger
	PollInterval time.Duration
	Now          func() time.Time
}

type feed struct {
	fanout *storage.Fanout
	last   []core.RecordID
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps     Dependencies
	mu       sync.Mutex
	feeds    map[string]*feed
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Backend{
		deps:  deps,
		feeds: make(map[string]*feed),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and starts the poll loop.
func (b *Backend) Init(ctx context.Context) error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	if err := database.Migrate(b.deps.DB.WithContext(ctx)); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	if b.deps.PollInterval > 0 {
		b.wg.Add(1)
		go b.pollLoop()
	}
	return nil
}

// Close stops the poll loop and every subscription.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.wg.Wait()
		b.stopChan = nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.feeds {
		f.fanout.Close()
	}
	b.feeds = make(map[string]*feed)
	return nil
}

// Append inserts record with a time-ordered id and the backend clock as createdAt.
func (b *Backend) Append(ctx context.Context, collection string, record core.PhotoRecord) (core.RecordID, error) {
	if b.deps.DB == nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, ErrNoDatabase)
	}
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("%w: generating id: %v", core.ErrStoreWrite, err)
	}
	record.ID = core.RecordID(id.String())
	// microsecond precision survives every SQL dialect round trip
	record.CreatedAt = b.deps.Now().UTC().Truncate(time.Microsecond)

	row := convert.PhotoToGorm(collection, record)
	if err := b.deps.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
	}

	b.refresh(ctx, collection)
	return record.ID, nil
}

// Query returns the collection sorted by order.
func (b *Backend) Query(ctx context.Context, collection string, order storage.OrderBy) ([]core.PhotoRecord, error) {
	if b.deps.DB == nil {
		return nil, ErrNoDatabase
	}

	clause := "created_at ASC, id ASC"
	if order.Descending {
		clause = "created_at DESC, id ASC"
	}

	var rows []model.Photo
	err := b.deps.DB.WithContext(ctx).
		Where("collection = ?", collection).
		Order(clause).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	return convert.PhotosToCore(rows), nil
}

// Subscribe delivers the current snapshot and every later change.
func (b *Backend) Subscribe(ctx context.Context, collection string, order storage.OrderBy, onChange func([]core.PhotoRecord)) (storage.Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot, err := b.Query(ctx, collection, storage.NewestFirst)
	if err != nil {
		return nil, err
	}

	f, ok := b.feeds[collection]
	if !ok {
		f = &feed{fanout: storage.NewFanout()}
		b.feeds[collection] = f
	}
	f.last = recordIDs(snapshot)

	deliver := onChange
	if order != storage.NewestFirst {
		deliver = func(r []core.PhotoRecord) {
			storage.Sort(r, order)
			onChange(r)
		}
	}

	return storage.BindContext(ctx, f.fanout.Add(snapshot, deliver)), nil
}

// refresh re-reads a subscribed collection and publishes when it changed.
func (b *Backend) refresh(ctx context.Context, collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.feeds[collection]
	if !ok || f.fanout.Len() == 0 {
		return
	}

	snapshot, err := b.Query(ctx, collection, storage.NewestFirst)
	if err != nil {
		b.deps.Logger.Error("refreshing subscription", "collection", collection, "error", err)
		return
	}

	ids := recordIDs(snapshot)
	if slices.Equal(ids, f.last) {
		return
	}
	f.last = ids
	f.fanout.Publish(snapshot)
}

func (b *Backend) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.deps.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.mu.Lock()
			collections := make([]string, 0, len(b.feeds))
			for name := range b.feeds {
				collections = append(collections, name)
			}
			b.mu.Unlock()

			for _, name := range collections {
				b.refresh(context.Background(), name)
			}
		}
	}
}

func recordIDs(records []core.PhotoRecord) []core.RecordID {
	ids := make([]core.RecordID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
