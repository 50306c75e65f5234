package sqlitestorage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photomap.db")
	cfg := config.SQLiteConfig{Path: path, PollInterval: 50 * time.Millisecond}
	rec := core.PhotoRecord{ImageData: "QUJD", Location: core.Coords{Latitude: 1, Longitude: 2}, CapturedBy: core.AnonymousIdentity}

	b, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init(context.Background()))

	id, err := b.Append(context.Background(), "photos", rec)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, reopened.Init(context.Background()))
	defer reopened.Close()

	records, err := reopened.Query(context.Background(), "photos", storage.NewestFirst)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, rec.Location, records[0].Location)
}
