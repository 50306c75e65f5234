// Package sqlitestorage implements the storage.Backend interface on an
// embedded SQLite file. It wraps the GORM backend via composition; the only
// SQLite-specific concerns are opening the file and closing the pool.
package sqlitestorage

import (
	"fmt"
	"log/slog"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/database"
	gormstorage "github.com/geotag/photomap/internal/storage/gorm"

	"gorm.io/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db *gorm.DB
}

// New opens cfg.Path (in memory when empty) and builds the backend.
func New(cfg config.SQLiteConfig, logger *slog.Logger) (*Backend, error) {
	db, err := database.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	if logger != nil {
		logger.Info("Using local SQLite DB", "path", cfg.Path, "poll", cfg.PollInterval)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:           db,
			Logger:       logger,
			PollInterval: cfg.PollInterval,
		}),
		db: db,
	}, nil
}

// Close stops the embedded backend and releases the connection pool.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
