package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

func TestMapError(t *testing.T) {
	if mapError(nil) != nil {
		t.Fatal("expected nil")
	}
	if !errors.Is(mapError(pgx.ErrNoRows), ErrNotFound) {
		t.Fatal("expected ErrNotFound for no rows")
	}
	if !errors.Is(mapError(&pgconn.PgError{Code: "23505"}), ErrConflict) {
		t.Fatal("expected ErrConflict for pg unique violation")
	}
	fk := mapError(&pgconn.PgError{Code: "23503"})
	if errors.Is(fk, ErrConflict) || !errors.Is(fk, ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference for pg foreign key violation, got %v", fk)
	}
	sqliteFK := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}
	if !errors.Is(mapError(sqliteFK), ErrUnknownReference) {
		t.Fatal("expected ErrUnknownReference for sqlite foreign key violation")
	}
	sqliteErr := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	if !errors.Is(mapError(sqliteErr), ErrConflict) {
		t.Fatal("expected ErrConflict for sqlite unique violation")
	}
}
