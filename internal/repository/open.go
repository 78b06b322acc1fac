package repository

import (
	"context"
	"fmt"

	"meetmap-backend/internal/config"
)

// Open builds the store selected by the storage driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case "", "file":
		return NewFileStore(cfg.Storage.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Storage.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.Database.DSN())
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
