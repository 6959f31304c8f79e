package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when an update targets a missing record.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned on unique constraint violations, e.g. a
	// second round for the same date.
	ErrConflict = errors.New("record already exists")

	// ErrUnknownReference is returned when a row points at a record that
	// does not exist, e.g. an avoid entry for a user never synced.
	ErrUnknownReference = errors.New("referenced record does not exist")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapError translates driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Join(ErrConflict, err)
		case pgForeignKeyViolation:
			return errors.Join(ErrUnknownReference, err)
		}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errors.Join(ErrConflict, err)
		case sqlite3.ErrConstraintForeignKey:
			return errors.Join(ErrUnknownReference, err)
		}
	}

	return err
}
