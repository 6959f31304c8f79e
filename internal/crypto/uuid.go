package crypto

import (
	"github.com/google/uuid"
)

// NewUUIDv7 generates a time-ordered UUID v7 for round and match records.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
