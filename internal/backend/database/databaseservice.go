package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session has no image slot
	ErrNotFound = errors.New("image not found")
	// ErrVersionConflict is returned when a conditional write lost against a newer one
	ErrVersionConflict = errors.New("image version conflict")
)

type DatabaseService interface {
	// CreateDatabase prepares the backend (schema, connectivity). It is idempotent.
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist(ctx context.Context) bool
	Close() error

	// SaveImage overwrites the slot of img.SessionID and returns the new version.
	// Version and UpdatedAt of img are ignored.
	SaveImage(ctx context.Context, img *Image) (int64, error)
	// SaveImageIfVersion writes img only while the stored version still equals expected.
	SaveImageIfVersion(ctx context.Context, img *Image, expected int64) (int64, error)
	// SetLastError records a failure message without touching the image bytes or version.
	SetLastError(ctx context.Context, sessionID string, message string) error
	GetImage(ctx context.Context, sessionID string) (*Image, error)
	DeleteImage(ctx context.Context, sessionID string) error
	// DeleteExpired removes every slot last written before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
