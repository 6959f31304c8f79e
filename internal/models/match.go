package models

import (
	"time"

	"github.com/google/uuid"
)

// MetStatus is the outcome of a match.
type MetStatus string

const (
	MetStatusPending MetStatus = "pending"
	MetStatusYes     MetStatus = "yes"
	MetStatusNo      MetStatus = "no"
)

// Valid reports whether s is a known status.
func (s MetStatus) Valid() bool {
	switch s {
	case MetStatusPending, MetStatusYes, MetStatusNo:
		return true
	}
	return false
}

// Match represents a group of participants paired for one round.
type Match struct {
	ID             uuid.UUID `json:"id"`
	RoundID        uuid.UUID `json:"round_id"`
	ParticipantIDs []string  `json:"participant_ids"`
	ConversationID string    `json:"conversation_id,omitempty"` // empty until opened
	MetStatus      MetStatus `json:"met_status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
