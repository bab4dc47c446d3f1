package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const imageColumns = "session_id, data, media_type, filename, width, height, rotation, version, last_error, updated_at"

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// every pooled connection would otherwise open its own empty in-memory database
	if strings.Contains(connectionString, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS images (
		session_id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		media_type TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		rotation INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS images_updated_at ON images (updated_at)`)
	return err
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist(ctx context.Context) bool {
	// The file is created on connect, so a successful ping is enough.
	return s.db.PingContext(ctx) == nil
}

func (s *SQLiteDatabase) SaveImage(ctx context.Context, img *Image) (int64, error) {
	row := s.db.QueryRowContext(ctx, `INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			data = excluded.data,
			media_type = excluded.media_type,
			filename = excluded.filename,
			width = excluded.width,
			height = excluded.height,
			rotation = excluded.rotation,
			version = images.version + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
		RETURNING version`,
		img.SessionID, img.Data, img.MediaType, img.Filename,
		img.Width, img.Height, img.Rotation, img.LastError, time.Now().UTC().UnixNano())

	var version int64
	if err := row.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLiteDatabase) SaveImageIfVersion(ctx context.Context, img *Image, expected int64) (int64, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE images SET
			data = ?, media_type = ?, filename = ?, width = ?, height = ?, rotation = ?,
			version = version + 1, last_error = ?, updated_at = ?
		WHERE session_id = ? AND version = ?
		RETURNING version`,
		img.Data, img.MediaType, img.Filename, img.Width, img.Height, img.Rotation,
		img.LastError, time.Now().UTC().UnixNano(), img.SessionID, expected)

	var version int64
	err := row.Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetImage(ctx, img.SessionID); getErr != nil {
			return 0, getErr
		}
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLiteDatabase) SetLastError(ctx context.Context, sessionID string, message string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE images SET last_error = ? WHERE session_id = ?", message, sessionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDatabase) GetImage(ctx context.Context, sessionID string) (*Image, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE session_id = ?", sessionID)

	var img Image
	var updatedAt int64
	err := row.Scan(&img.SessionID, &img.Data, &img.MediaType, &img.Filename,
		&img.Width, &img.Height, &img.Rotation, &img.Version, &img.LastError, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	img.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &img, nil
}

func (s *SQLiteDatabase) DeleteImage(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE session_id = ?", sessionID)
	return err
}

func (s *SQLiteDatabase) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE updated_at < ?", before.UTC().UnixNano())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
