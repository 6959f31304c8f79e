package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/donut/internal/crypto"
	"github.com/eldtechnologies/donut/internal/metrics"
	"github.com/eldtechnologies/donut/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observe(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

// UpsertUser marks a user active, creating the record if needed.
func (s *PostgresStore) UpsertUser(ctx context.Context, id, displayName string) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (slack_user_id, display_name, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (slack_user_id)
		DO UPDATE SET display_name = EXCLUDED.display_name, is_active = TRUE, updated_at = NOW()
	`, id, displayName)
	return mapError(err)
}

// DeactivateUsersExcept clears the active flag on every active user not in
// activeIDs and returns how many were deactivated.
func (s *PostgresStore) DeactivateUsersExcept(ctx context.Context, activeIDs []string) (int64, error) {
	defer observe(time.Now())
	if activeIDs == nil {
		activeIDs = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = NOW()
		WHERE is_active = TRUE AND NOT (slack_user_id = ANY($1))
	`, activeIDs)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

// GetActiveUsers lists users with the active flag set.
func (s *PostgresStore) GetActiveUsers(ctx context.Context) ([]models.User, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT slack_user_id, display_name, is_active, created_at, updated_at
		FROM users WHERE is_active = TRUE
		ORDER BY slack_user_id
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetAvoidList returns every avoid-list entry.
func (s *PostgresStore) GetAvoidList(ctx context.Context) ([]models.AvoidEntry, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, avoid_user_id, created_at FROM user_avoid_list
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []models.AvoidEntry
	for rows.Next() {
		var e models.AvoidEntry
		if err := rows.Scan(&e.UserID, &e.AvoidUserID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddAvoid records the avoidance in both directions.
func (s *PostgresStore) AddAvoid(ctx context.Context, userID, avoidUserID string) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_avoid_list (user_id, avoid_user_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT DO NOTHING
	`, userID, avoidUserID)
	return mapError(err)
}

// CreateRound inserts an active round for roundDate. A second round on the
// same date returns ErrConflict.
func (s *PostgresStore) CreateRound(ctx context.Context, roundDate time.Time) (*models.Round, error) {
	defer observe(time.Now())
	round := &models.Round{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rounds (id, round_date, status)
		VALUES ($1, $2, $3)
		RETURNING id, round_date, status, created_at
	`, crypto.NewUUIDv7(), models.DateOnly(roundDate), models.RoundStatusActive).Scan(
		&round.ID,
		&round.RoundDate,
		&round.Status,
		&round.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return round, nil
}

// GetMostRecentRound returns the latest round by creation time, or nil.
func (s *PostgresStore) GetMostRecentRound(ctx context.Context) (*models.Round, error) {
	defer observe(time.Now())
	round := &models.Round{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, round_date, status, created_at
		FROM rounds ORDER BY created_at DESC LIMIT 1
	`).Scan(
		&round.ID,
		&round.RoundDate,
		&round.Status,
		&round.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return round, nil
}

// CreateMatch inserts a pending match.
func (s *PostgresStore) CreateMatch(ctx context.Context, roundID uuid.UUID, participantIDs []string) (*models.Match, error) {
	defer observe(time.Now())
	if len(participantIDs) < 2 {
		return nil, fmt.Errorf("match needs at least 2 participants, got %d", len(participantIDs))
	}

	match := &models.Match{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO matches (id, round_id, participant_ids, met_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, round_id, participant_ids, met_status, created_at, updated_at
	`, crypto.NewUUIDv7(), roundID, participantIDs, models.MetStatusPending).Scan(
		&match.ID,
		&match.RoundID,
		&match.ParticipantIDs,
		&match.MetStatus,
		&match.CreatedAt,
		&match.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return match, nil
}

// SetMatchConversation stores the conversation handle for a match.
func (s *PostgresStore) SetMatchConversation(ctx context.Context, matchID uuid.UUID, conversationID string) error {
	defer observe(time.Now())
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches SET slack_channel_id = $2, updated_at = NOW() WHERE id = $1
	`, matchID, conversationID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMatchStatus overwrites the met status. Repeated writes are allowed.
func (s *PostgresStore) SetMatchStatus(ctx context.Context, matchID uuid.UUID, status models.MetStatus) error {
	defer observe(time.Now())
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches SET met_status = $2, updated_at = NOW() WHERE id = $1
	`, matchID, status)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMatchesForRound lists a round's matches in creation order.
func (s *PostgresStore) GetMatchesForRound(ctx context.Context, roundID uuid.UUID) ([]models.Match, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, round_id, participant_ids, COALESCE(slack_channel_id, ''), met_status, created_at, updated_at
		FROM matches WHERE round_id = $1
		ORDER BY created_at
	`, roundID)
	if err != nil {
		return nil, mapError(err)
	}
	return collectMatches(rows)
}

// GetPriorPairings lists matches created at or after since.
func (s *PostgresStore) GetPriorPairings(ctx context.Context, since time.Time) ([]models.Match, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, round_id, participant_ids, COALESCE(slack_channel_id, ''), met_status, created_at, updated_at
		FROM matches WHERE created_at >= $1
		ORDER BY created_at
	`, since)
	if err != nil {
		return nil, mapError(err)
	}
	return collectMatches(rows)
}

func collectMatches(rows pgx.Rows) ([]models.Match, error) {
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		err := rows.Scan(
			&m.ID,
			&m.RoundID,
			&m.ParticipantIDs,
			&m.ConversationID,
			&m.MetStatus,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetConfig reads a config value.
func (s *PostgresStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	defer observe(time.Now())
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetConfig writes a config value.
func (s *PostgresStore) SetConfig(ctx context.Context, key, value string) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return mapError(err)
}

// ListConfig returns all config values.
func (s *PostgresStore) ListConfig(ctx context.Context) (map[string]string, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}
