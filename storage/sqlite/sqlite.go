// Package sqlite is the Storage Port driver for SQLite, wired from
// github.com/mattn/go-sqlite3 — the driver Pranav1703-FlamAssignment uses
// for its own single-file job queue store.
package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/Shyp/jobqueue/storage"
	"github.com/Shyp/jobqueue/storageerr"
)

// Classify turns a sqlite3.Error into the dialect-neutral *storageerr.Error.
func Classify(err error) *storageerr.Error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return nil
	}
	switch serr.Code {
	case sqlite3.ErrConstraint:
		switch serr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &storageerr.Error{Message: "a row already exists with that value", Code: storageerr.CodeUniqueViolation}
		case sqlite3.ErrConstraintForeignKey:
			return &storageerr.Error{Message: serr.Error(), Code: storageerr.CodeForeignKeyViolation}
		case sqlite3.ErrConstraintNotNull:
			return &storageerr.Error{Message: serr.Error(), Code: storageerr.CodeNotNullViolation}
		case sqlite3.ErrConstraintCheck:
			return &storageerr.Error{Message: serr.Error(), Code: storageerr.CodeCheckViolation}
		default:
			return &storageerr.Error{Message: serr.Error(), Code: storageerr.CodeCheckViolation}
		}
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return &storageerr.Error{Message: serr.Error(), Code: storageerr.CodeLockNotAvailable}
	default:
		return &storageerr.Error{Message: serr.Error()}
	}
}

func autoIncrement(storage.ColumnDef) string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// New constructs a Storage Port backed by SQLite via
// github.com/mattn/go-sqlite3. SQLite has no row-level FOR UPDATE locking;
// the Execution Loop relies on SQLite's whole-database write lock instead,
// which still satisfies spec.md's "at most one worker holds the row"
// invariant, just at coarser granularity.
func New() storage.Port {
	return storage.NewSQLPort(storage.Config{
		Dialect:       storage.DialectSQLite,
		DriverName:    "sqlite3",
		QuoteChar:     [2]byte{'"', '"'},
		NowFn:         "CURRENT_TIMESTAMP",
		AutoIncrement: autoIncrement,
		Placeholder:   nil,
		Classifier:    Classify,
	})
}
