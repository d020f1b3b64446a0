// Package repository implements persistence on MySQL.  Lookups that find no
// row return apperr.ErrNotFound; unique index violations that mean a
// business conflict return apperr.ErrConflict.  Handlers and services match
// on those sentinels with errors.Is.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/database"
)

// ErrEmailExists is returned by UserRepo.Create for a taken email.
var ErrEmailExists = errors.New("email already exists")

// querier is satisfied by *sql.DB and *sql.Tx so one query helper serves
// both standalone reads and work inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound maps sql.ErrNoRows to apperr.ErrNotFound and passes anything
// else through.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(format, args...)
	}
	return err
}

// conflictOnDuplicate maps MySQL 1062 to apperr.ErrConflict.
func conflictOnDuplicate(err error, format string, args ...any) error {
	if database.IsDuplicateKey(err) {
		return apperr.Conflict(format, args...)
	}
	return err
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
