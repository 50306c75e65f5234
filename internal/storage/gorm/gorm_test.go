package gormstorage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/geotag/photomap/internal/database"
	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func newTestBackend(t *testing.T, poll time.Duration) *Backend {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "photos.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, PollInterval: poll})
	require.NoError(t, b.Init(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b
}

func photo(data string) core.PhotoRecord {
	return core.PhotoRecord{ImageData: data, Location: core.Coords{Latitude: 12.9716, Longitude: 77.5946}, CapturedBy: "u1"}
}

type recorder struct {
	mu   sync.Mutex
	last []core.PhotoRecord
}

func (r *recorder) onChange(records []core.PhotoRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = records
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.last)
}

func TestInit_NoDatabase(t *testing.T) {
	b := New(Dependencies{})
	assert.ErrorIs(t, b.Init(context.Background()), ErrNoDatabase)

	_, err := b.Append(context.Background(), "photos", photo("x"))
	assert.ErrorIs(t, err, core.ErrStoreWrite)
}

func TestAppend_RoundTrip(t *testing.T) {
	b := newTestBackend(t, 0)

	id, err := b.Append(context.Background(), "photos", photo("QUJD"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := b.Query(context.Background(), "photos", storage.NewestFirst)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "QUJD", got.ImageData)
	assert.Equal(t, core.Coords{Latitude: 12.9716, Longitude: 77.5946}, got.Location)
	assert.Equal(t, "u1", got.CapturedBy)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestAppend_RejectsPartialRecord(t *testing.T) {
	b := newTestBackend(t, 0)

	_, err := b.Append(context.Background(), "photos", core.PhotoRecord{})
	assert.ErrorIs(t, err, core.ErrStoreWrite)

	records, err := b.Query(context.Background(), "photos", storage.NewestFirst)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestQuery_OrderAndCollectionIsolation(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	b := newTestBackend(t, 0)
	b.deps.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, d := range []string{"one", "two", "three"} {
		_, err := b.Append(context.Background(), "photos", photo(d))
		require.NoError(t, err)
	}
	_, err := b.Append(context.Background(), "other", photo("elsewhere"))
	require.NoError(t, err)

	desc, err := b.Query(context.Background(), "photos", storage.NewestFirst)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, "three", desc[0].ImageData)
	assert.Equal(t, "one", desc[2].ImageData)

	asc, err := b.Query(context.Background(), "photos", storage.OrderBy{Field: "createdAt"})
	require.NoError(t, err)
	assert.Equal(t, "one", asc[0].ImageData)
}

func TestSubscribe_LocalAppendPublishes(t *testing.T) {
	b := newTestBackend(t, 0)

	var rec recorder
	unsub, err := b.Subscribe(context.Background(), "photos", storage.NewestFirst, rec.onChange)
	require.NoError(t, err)
	defer unsub()

	_, err = b.Append(context.Background(), "photos", photo("live"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscribe_PollPicksUpOtherWriters(t *testing.T) {
	writer := newTestBackend(t, 0)
	reader := New(Dependencies{DB: writer.DB(), PollInterval: 10 * time.Millisecond})
	require.NoError(t, reader.Init(context.Background()))
	defer reader.Close()

	var rec recorder
	unsub, err := reader.Subscribe(context.Background(), "photos", storage.NewestFirst, rec.onChange)
	require.NoError(t, err)
	defer unsub()

	_, err = writer.Append(context.Background(), "photos", photo("remote"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.len() == 1 }, 2*time.Second, 10*time.Millisecond)
}
