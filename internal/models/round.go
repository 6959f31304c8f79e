package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatusActive is the only round status produced when pairing.
const RoundStatusActive = "active"

// Round represents one pairing cycle.
type Round struct {
	ID        uuid.UUID `json:"id"`
	RoundDate time.Time `json:"round_date"` // UTC calendar date
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
