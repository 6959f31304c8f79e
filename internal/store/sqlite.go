package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/donut/internal/crypto"
	"github.com/eldtechnologies/donut/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/donut.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/donut.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		slack_user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rounds (
		id TEXT PRIMARY KEY,
		round_date DATE NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		round_id TEXT NOT NULL REFERENCES rounds(id),
		participant_ids TEXT NOT NULL,
		slack_channel_id TEXT,
		met_status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_avoid_list (
		user_id TEXT NOT NULL REFERENCES users(slack_user_id),
		avoid_user_id TEXT NOT NULL REFERENCES users(slack_user_id),
		created_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, avoid_user_id)
	);

	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_active ON users(is_active);
	CREATE INDEX IF NOT EXISTS idx_rounds_created ON rounds(created_at);
	CREATE INDEX IF NOT EXISTS idx_matches_round ON matches(round_id);
	CREATE INDEX IF NOT EXISTS idx_matches_created ON matches(created_at);

	INSERT OR IGNORE INTO config (key, value) VALUES ('pairing_interval_days', '7');
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser marks a user active, creating the record if needed.
func (s *SQLiteStore) UpsertUser(ctx context.Context, id, displayName string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (slack_user_id, display_name, is_active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (slack_user_id)
		DO UPDATE SET display_name = excluded.display_name, is_active = 1, updated_at = excluded.updated_at
	`, id, displayName, now, now)
	return mapError(err)
}

// DeactivateUsersExcept clears the active flag on every active user not in
// activeIDs and returns how many were deactivated.
func (s *SQLiteStore) DeactivateUsersExcept(ctx context.Context, activeIDs []string) (int64, error) {
	keep := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		keep[id] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT slack_user_id FROM users WHERE is_active = 1`)
	if err != nil {
		return 0, err
	}
	var departed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		if !keep[id] {
			departed = append(departed, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, id := range departed {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET is_active = 0, updated_at = ? WHERE slack_user_id = ?
		`, now, id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(departed)), nil
}

// GetActiveUsers lists users with the active flag set.
func (s *SQLiteStore) GetActiveUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slack_user_id, display_name, is_active, created_at, updated_at
		FROM users WHERE is_active = 1
		ORDER BY slack_user_id
	`)
	if err != nil {
		return nil, err
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
func (s *SQLiteStore) GetAvoidList(ctx context.Context) ([]models.AvoidEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, avoid_user_id, created_at FROM user_avoid_list
	`)
	if err != nil {
		return nil, err
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
func (s *SQLiteStore) AddAvoid(ctx context.Context, userID, avoidUserID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_avoid_list (user_id, avoid_user_id, created_at)
		VALUES (?, ?, ?), (?, ?, ?)
	`, userID, avoidUserID, now, avoidUserID, userID, now)
	return mapError(err)
}

// CreateRound inserts an active round for roundDate. A second round on the
// same date returns ErrConflict.
func (s *SQLiteStore) CreateRound(ctx context.Context, roundDate time.Time) (*models.Round, error) {
	round := &models.Round{
		ID:        crypto.NewUUIDv7(),
		RoundDate: models.DateOnly(roundDate),
		Status:    models.RoundStatusActive,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds (id, round_date, status, created_at)
		VALUES (?, ?, ?, ?)
	`, round.ID.String(), round.RoundDate, round.Status, round.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return round, nil
}

// GetMostRecentRound returns the latest round by creation time, or nil.
func (s *SQLiteStore) GetMostRecentRound(ctx context.Context) (*models.Round, error) {
	round := &models.Round{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, round_date, status, created_at
		FROM rounds ORDER BY created_at DESC, id DESC LIMIT 1
	`).Scan(
		&idStr,
		&round.RoundDate,
		&round.Status,
		&round.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	round.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return round, nil
}

// CreateMatch inserts a pending match.
func (s *SQLiteStore) CreateMatch(ctx context.Context, roundID uuid.UUID, participantIDs []string) (*models.Match, error) {
	if len(participantIDs) < 2 {
		return nil, fmt.Errorf("match needs at least 2 participants, got %d", len(participantIDs))
	}
	participants, err := json.Marshal(participantIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	match := &models.Match{
		ID:             crypto.NewUUIDv7(),
		RoundID:        roundID,
		ParticipantIDs: append([]string(nil), participantIDs...),
		MetStatus:      models.MetStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matches (id, round_id, participant_ids, met_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, match.ID.String(), roundID.String(), string(participants), string(match.MetStatus), now, now)
	if err != nil {
		return nil, mapError(err)
	}
	return match, nil
}

// SetMatchConversation stores the conversation handle for a match.
func (s *SQLiteStore) SetMatchConversation(ctx context.Context, matchID uuid.UUID, conversationID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matches SET slack_channel_id = ?, updated_at = ? WHERE id = ?
	`, conversationID, time.Now().UTC(), matchID.String())
	return affectedOne(res, err)
}

// SetMatchStatus overwrites the met status. Repeated writes are allowed.
func (s *SQLiteStore) SetMatchStatus(ctx context.Context, matchID uuid.UUID, status models.MetStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matches SET met_status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), matchID.String())
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMatchesForRound lists a round's matches in creation order.
func (s *SQLiteStore) GetMatchesForRound(ctx context.Context, roundID uuid.UUID) ([]models.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, participant_ids, COALESCE(slack_channel_id, ''), met_status, created_at, updated_at
		FROM matches WHERE round_id = ?
		ORDER BY created_at, id
	`, roundID.String())
	if err != nil {
		return nil, err
	}
	return scanSQLiteMatches(rows)
}

// GetPriorPairings lists matches created at or after since.
func (s *SQLiteStore) GetPriorPairings(ctx context.Context, since time.Time) ([]models.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, participant_ids, COALESCE(slack_channel_id, ''), met_status, created_at, updated_at
		FROM matches WHERE created_at >= ?
		ORDER BY created_at, id
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	return scanSQLiteMatches(rows)
}

func scanSQLiteMatches(rows *sql.Rows) ([]models.Match, error) {
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var (
			m                     models.Match
			idStr, roundStr, pids string
			status                string
		)
		err := rows.Scan(&idStr, &roundStr, &pids, &m.ConversationID, &status, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if m.RoundID, err = uuid.Parse(roundStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pids), &m.ParticipantIDs); err != nil {
			return nil, fmt.Errorf("decode participants of match %s: %w", idStr, err)
		}
		m.MetStatus = models.MetStatus(status)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetConfig reads a config value.
func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetConfig writes a config value.
func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return mapError(err)
}

// ListConfig returns all config values.
func (s *SQLiteStore) ListConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, err
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
