package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/internal/storage/memory"
	"github.com/geotag/photomap/internal/storage/natskv"
	pgstorage "github.com/geotag/photomap/internal/storage/postgres"
	sqlitestorage "github.com/geotag/photomap/internal/storage/sqlite"
)

// openStorage builds and initializes the configured document store.
func openStorage(ctx context.Context, storageCfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	backend, err := createStorageBackend(storageCfg, logger)
	if err != nil {
		logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(ctx); err != nil {
		logger.Error("Failed to initialize storage backend", "error", err)
		_ = backend.Close()
		return nil, fmt.Errorf("initializing %s storage: %w", storageCfg.Type, err)
	}
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		backend, err := pgstorage.New(storageCfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres backend: %w", err)
		}
		logger.Info("Postgres storage backend initialized")
		return backend, nil

	case "sqlite":
		backend, err := sqlitestorage.New(storageCfg.SQLite, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized")
		return backend, nil

	case "nats":
		logger.Info("NATS KV storage backend initialized", "url", storageCfg.NATS.URL, "embedded", storageCfg.NATS.Embedded)
		return natskv.New(storageCfg.NATS, logger), nil

	case "memory", "":
		logger.Info("Memory storage backend initialized")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}
