// Package rounds drives the pairing lifecycle: deciding when a round is due,
// creating it, announcing its matches, reminding participants, recording
// whether they met, and summarizing the results.
//
// Every entry point is a short, independent invocation that re-reads the
// store and returns a structured outcome instead of an error, so an HTTP
// layer or scheduler can map it directly to a response.
package rounds

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/models"
)

// Store is the subset of the history store the service needs.
type Store interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)

	UpsertUser(ctx context.Context, id, displayName string) error
	DeactivateUsersExcept(ctx context.Context, activeIDs []string) (int64, error)
	GetAvoidList(ctx context.Context) ([]models.AvoidEntry, error)

	CreateRound(ctx context.Context, roundDate time.Time) (*models.Round, error)
	GetMostRecentRound(ctx context.Context) (*models.Round, error)

	CreateMatch(ctx context.Context, roundID uuid.UUID, participantIDs []string) (*models.Match, error)
	SetMatchConversation(ctx context.Context, matchID uuid.UUID, conversationID string) error
	SetMatchStatus(ctx context.Context, matchID uuid.UUID, status models.MetStatus) error
	GetMatchesForRound(ctx context.Context, roundID uuid.UUID) ([]models.Match, error)
	GetPriorPairings(ctx context.Context, since time.Time) ([]models.Match, error)
}

// Prompt is an interactive "did you meet?" question attached to a message.
type Prompt struct {
	MatchID uuid.UUID
	Text    string
}

// Gateway delivers messages to the chat platform.
type Gateway interface {
	// OpenConversation opens (or reuses) a group conversation with the
	// given users and returns its handle.
	OpenConversation(ctx context.Context, userIDs []string) (string, error)
	// PostMessage posts text, optionally with an interactive prompt.
	PostMessage(ctx context.Context, conversationID, text string, prompt *Prompt) error
	// Respond replaces the message that carried an interactive prompt.
	Respond(ctx context.Context, responseURL, text string) error
}

// Member describes one channel member as reported by the platform.
type Member struct {
	ID          string
	DisplayName string
	IsBot       bool
}

// Directory enumerates the members of the pairing channel.
type Directory interface {
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
	UserInfo(ctx context.Context, userID string) (*Member, error)
}

// Locker serializes round creation across processes.
type Locker interface {
	AcquireRoundLock(ctx context.Context, roundDate time.Time, owner string) (bool, error)
	ReleaseRoundLock(ctx context.Context, roundDate time.Time, owner string) error
}

// Config tunes the service.
type Config struct {
	// CallTimeout bounds every store and gateway call.
	CallTimeout time.Duration
	// AnnounceConcurrency caps how many groups are announced at once.
	AnnounceConcurrency int
	// HistoryWindow limits how far back prior pairings are read.
	// Zero reads the full history.
	HistoryWindow time.Duration
}

// Deps are the collaborators of the service. Locker and Seed are optional.
type Deps struct {
	Store     Store
	Gateway   Gateway
	Directory Directory
	Locker    Locker
	Logger    zerolog.Logger
	// Seed returns the shuffle seed for each round.
	Seed func() int64
}

// Service runs the round lifecycle.
type Service struct {
	store     Store
	gateway   Gateway
	directory Directory
	locker    Locker
	logger    zerolog.Logger
	seed      func() int64
	cfg       Config
}

// NewService creates a new Service.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.AnnounceConcurrency <= 0 {
		cfg.AnnounceConcurrency = 1
	}
	seed := deps.Seed
	if seed == nil {
		seed = randomSeed
	}
	return &Service{
		store:     deps.Store,
		gateway:   deps.Gateway,
		directory: deps.Directory,
		locker:    deps.Locker,
		logger:    deps.Logger.With().Str("component", "rounds").Logger(),
		seed:      seed,
		cfg:       cfg,
	}
}

// call derives a context bounded by the configured call timeout.
func (s *Service) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.CallTimeout)
}

// randomSeed reads a shuffle seed from crypto/rand, falling back to the clock.
func randomSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
