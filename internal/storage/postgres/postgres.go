// Package postgres implements the storage.Backend interface on PostgreSQL
// through the shared GORM backend.
package postgres

import (
	"log/slog"
	"time"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/database"
	gormstorage "github.com/geotag/photomap/internal/storage/gorm"

	"gorm.io/gorm"
)

// Backend wraps the GORM backend with a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	db *gorm.DB
}

// New connects to the server in cfg and builds the backend.
func New(cfg config.PostgresConfig, logger *slog.Logger) (*Backend, error) {
	db, err := database.OpenPostgres(cfg)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("Using Postgres DB", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	}
	return NewFromDB(db, cfg.PollInterval, logger), nil
}

// NewFromDB builds the backend on an existing connection.
func NewFromDB(db *gorm.DB, poll time.Duration, logger *slog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:           db,
			Logger:       logger,
			PollInterval: poll,
		}),
		db: db,
	}
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
