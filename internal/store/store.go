package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/donut/internal/models"
)

// DataStore defines the interface for persistent storage of users, rounds,
// matches, avoid lists and config. Both PostgresStore and SQLiteStore
// implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	UpsertUser(ctx context.Context, id, displayName string) error
	DeactivateUsersExcept(ctx context.Context, activeIDs []string) (int64, error)
	GetActiveUsers(ctx context.Context) ([]models.User, error)

	// Avoid list operations
	GetAvoidList(ctx context.Context) ([]models.AvoidEntry, error)
	AddAvoid(ctx context.Context, userID, avoidUserID string) error

	// Round operations
	CreateRound(ctx context.Context, roundDate time.Time) (*models.Round, error)
	GetMostRecentRound(ctx context.Context) (*models.Round, error)

	// Match operations
	CreateMatch(ctx context.Context, roundID uuid.UUID, participantIDs []string) (*models.Match, error)
	SetMatchConversation(ctx context.Context, matchID uuid.UUID, conversationID string) error
	SetMatchStatus(ctx context.Context, matchID uuid.UUID, status models.MetStatus) error
	GetMatchesForRound(ctx context.Context, roundID uuid.UUID) ([]models.Match, error)
	GetPriorPairings(ctx context.Context, since time.Time) ([]models.Match, error)

	// Config operations
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	ListConfig(ctx context.Context) (map[string]string, error)
}
