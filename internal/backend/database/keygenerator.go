package database

import "github.com/google/uuid"

// NewSessionID returns a random RFC 4122 version 4 identifier
func NewSessionID() string {
	return uuid.NewString()
}

// IsValidSessionID reports whether id has the shape produced by NewSessionID
func IsValidSessionID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.Version() == 4 && parsed.String() == id
}
