package database

import (
	"path/filepath"
	"testing"

	"github.com/geotag/photomap/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host:     "db",
		Port:     "5433",
		Username: "app",
		Password: "secret",
		Database: "photomap",
	})

	assert.Equal(t, "host=db port=5433 user=app password=secret dbname=photomap sslmode=disable", dsn)
}

func TestOpenSQLite_FileAndMigrate(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "photos.db"))
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable("photos"))
}

func TestOpenSQLite_InMemory(t *testing.T) {
	db, err := OpenSQLite("")
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable("photos"))
}
