package models

import "time"

// User represents a channel member eligible for pairing.
type User struct {
	ID          string    `json:"id"` // Slack user ID
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AvoidEntry records that UserID must never be grouped with AvoidUserID.
// Entries are directed; lookups treat them symmetrically.
type AvoidEntry struct {
	UserID      string    `json:"user_id"`
	AvoidUserID string    `json:"avoid_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
