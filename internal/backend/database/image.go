package database

import "time"

// Image is the single image slot owned by one browser session
type Image struct {
	SessionID string    `db:"session_id"`
	Data      []byte    `db:"data"`       // encoded bytes in their original format
	MediaType string    `db:"media_type"` // MIME type of Data
	Filename  string    `db:"filename"`   // name of the uploaded file, informational only
	Width     int       `db:"width"`
	Height    int       `db:"height"`
	Rotation  int       `db:"rotation"`   // accumulated clockwise degrees since upload
	Version   int64     `db:"version"`    // incremented on every successful write
	LastError string    `db:"last_error"` // message of the most recent failed operation
	UpdatedAt time.Time `db:"updated_at"`
}
