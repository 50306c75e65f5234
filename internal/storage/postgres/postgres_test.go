package postgres

import (
	"context"
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

// The Postgres dialect shares every query with the GORM backend, so the
// wrapper is exercised over SQLite here.
func TestNewFromDB_InitAppendClose(t *testing.T) {
	db, err := database.OpenSQLite("")
	require.NoError(t, err)

	b := NewFromDB(db, 10*time.Millisecond, nil)
	require.NoError(t, b.Init(context.Background()))

	_, err = b.Append(context.Background(), "photos", core.PhotoRecord{
		ImageData: "QUJD",
		Location:  core.Coords{Latitude: 3, Longitude: 4},
	})
	require.NoError(t, err)

	records, err := b.Query(context.Background(), "photos", storage.NewestFirst)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, b.Close())
}
