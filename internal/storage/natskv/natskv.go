// Package natskv implements storage.Backend on NATS JetStream key-value
// buckets, one bucket per collection. createdAt is the server timestamp of
// the KV entry and subscriptions are driven by KV watchers.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/pkg/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrNotConnected is returned before Init or after Close.
var ErrNotConnected = errors.New("nats backend not connected")

// document is the value stored under each key.
type document struct {
	Image    string      `json:"image"`
	Location core.Coords `json:"location"`
	UID      string      `json:"uid"`
}

// Backend stores photo records in JetStream KV buckets.
type Backend struct {
	cfg    config.NATSConfig
	logger *slog.Logger

	embedded *server.Server
	conn     *nats.Conn
	js       jetstream.JetStream

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// New creates a backend; Init connects it.
func New(cfg config.NATSConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BucketPrefix == "" {
		cfg.BucketPrefix = "PHOTOMAP"
	}
	return &Backend{
		cfg:     cfg,
		logger:  logger,
		buckets: make(map[string]jetstream.KeyValue),
	}
}

// BucketName maps a collection to a valid KV bucket name.
func BucketName(prefix, collection string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, collection)
	return prefix + "_" + name
}

// Init starts the embedded server when configured and connects to JetStream.
func (b *Backend) Init(ctx context.Context) error {
	url := b.cfg.URL

	if b.cfg.Embedded {
		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      -1,
			JetStream: true,
			StoreDir:  b.cfg.StoreDir,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		b.embedded = ns
		url = ns.ClientURL()
		b.logger.Info("Started embedded NATS server", "url", url)
	}

	conn, err := nats.Connect(url, nats.Name("photomap"))
	if err != nil {
		b.shutdownEmbedded()
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		b.shutdownEmbedded()
		return fmt.Errorf("create JetStream context: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.js = js
	b.mu.Unlock()
	return nil
}

// Close disconnects and stops the embedded server.
func (b *Backend) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.js = nil
	b.buckets = make(map[string]jetstream.KeyValue)
	b.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	b.shutdownEmbedded()
	return nil
}

func (b *Backend) shutdownEmbedded() {
	if b.embedded != nil {
		b.embedded.Shutdown()
		b.embedded.WaitForShutdown()
		b.embedded = nil
	}
}

func (b *Backend) bucket(ctx context.Context, collection string) (jetstream.KeyValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.js == nil {
		return nil, ErrNotConnected
	}
	if kv, ok := b.buckets[collection]; ok {
		return kv, nil
	}

	kv, err := b.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName(b.cfg.BucketPrefix, collection),
		Description: "photomap collection " + collection,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bucket for %s: %w", collection, err)
	}
	b.buckets[collection] = kv
	return kv, nil
}

// Append writes record under a new time-ordered key.
func (b *Backend) Append(ctx context.Context, collection string, record core.PhotoRecord) (core.RecordID, error) {
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
	}

	kv, err := b.bucket(ctx, collection)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("%w: generating id: %v", core.ErrStoreWrite, err)
	}

	data, err := json.Marshal(document{
		Image:    record.ImageData,
		Location: record.Location,
		UID:      record.CapturedBy,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding: %v", core.ErrStoreWrite, err)
	}

	if _, err := kv.Create(ctx, id.String(), data); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
	}
	return core.RecordID(id.String()), nil
}

// Query reads every key of the collection.
func (b *Backend) Query(ctx context.Context, collection string, order storage.OrderBy) ([]core.PhotoRecord, error) {
	kv, err := b.bucket(ctx, collection)
	if err != nil {
		return nil, err
	}

	keys, err := kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []core.PhotoRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}

	records := make([]core.PhotoRecord, 0, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s/%s: %w", collection, key, err)
		}
		rec, err := decode(entry)
		if err != nil {
			b.logger.Warn("Skipping undecodable record", "collection", collection, "key", key, "error", err)
			continue
		}
		records = append(records, rec)
	}

	storage.Sort(records, order)
	return records, nil
}

// Subscribe watches the bucket. The first snapshot is published once the
// watcher has replayed the existing keys.
func (b *Backend) Subscribe(ctx context.Context, collection string, order storage.OrderBy, onChange func([]core.PhotoRecord)) (storage.Unsubscribe, error) {
	kv, err := b.bucket(ctx, collection)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	watcher, err := kv.WatchAll(wctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watching %s: %w", collection, err)
	}

	fan := storage.NewFanout()
	unsub := fan.Add(nil, onChange)

	go b.watchLoop(wctx, collection, order, watcher, fan)

	return storage.BindContext(ctx, func() {
		cancel()
		watcher.Stop()
		unsub()
	}), nil
}

func (b *Backend) watchLoop(ctx context.Context, collection string, order storage.OrderBy, watcher jetstream.KeyWatcher, fan *storage.Fanout) {
	records := make(map[string]core.PhotoRecord)
	replayed := false

	publish := func() {
		snapshot := make([]core.PhotoRecord, 0, len(records))
		for _, r := range records {
			snapshot = append(snapshot, r)
		}
		storage.Sort(snapshot, order)
		fan.Publish(snapshot)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				return
			}
			// nil entry signals end of initial values replay
			if entry == nil {
				replayed = true
				publish()
				continue
			}

			switch entry.Operation() {
			case jetstream.KeyValuePut:
				rec, err := decode(entry)
				if err != nil {
					b.logger.Warn("Skipping undecodable record", "collection", collection, "key", entry.Key(), "error", err)
					continue
				}
				records[entry.Key()] = rec
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				delete(records, entry.Key())
			}

			if replayed {
				publish()
			}
		}
	}
}

func decode(entry jetstream.KeyValueEntry) (core.PhotoRecord, error) {
	var doc document
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return core.PhotoRecord{}, err
	}
	return core.PhotoRecord{
		ID:         core.RecordID(entry.Key()),
		ImageData:  doc.Image,
		Location:   doc.Location,
		CapturedBy: doc.UID,
		CreatedAt:  entry.Created().UTC(),
	}, nil
}
