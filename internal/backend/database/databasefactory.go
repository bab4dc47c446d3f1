package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NewDatabase opens the configured backend and ensures it is ready for use.
// ttl only applies to backends with native expiry.
func NewDatabase(ctx context.Context, databaseType, connectionString string, ttl time.Duration) (database DatabaseService, err error) {
	switch databaseType {
	case "sqlite":
		database, err = NewSQLiteDatabase(connectionString)
	case "redis":
		database, err = NewRedisDatabase(connectionString, ttl)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("database: initializing", "type", databaseType)
	if err = database.CreateDatabase(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
