// Package postgres is the Storage Port driver for PostgreSQL, the primary
// dialect this module is grounded on (rickover ran exclusively against
// Postgres). The error classifier below generalizes rickover's
// github.com/Shyp/go-dberror, which performed the same pq.Error ->
// human-readable translation for a single dialect.
package postgres

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/lib/pq"

	"github.com/Shyp/jobqueue/storage"
	"github.com/Shyp/jobqueue/storageerr"
)

func init() {
	storageerr.RegisterConstraint(storageerr.Constraint{
		Name:    "jobs_max_retries_check",
		Message: "max_retries must be a non-negative number",
	})
}

var columnFinder = regexp.MustCompile(`Key \((.+)\)=`)

func findColumn(detail string) string {
	m := columnFinder.FindStringSubmatch(detail)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Classify mirrors go-dberror.GetError's pq.Error code switch, but returns
// the dialect-neutral *storageerr.Error rather than a Postgres-specific
// type.
func Classify(err error) *storageerr.Error {
	pqerr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}
	switch pqerr.Code.Name() {
	case "unique_violation":
		col := findColumn(pqerr.Detail)
		msg := fmt.Sprintf("a row already exists with that %s", orValue(col))
		return &storageerr.Error{
			Message: msg, Code: storageerr.CodeUniqueViolation,
			Constraint: pqerr.Constraint, Table: pqerr.Table, Column: col, Detail: pqerr.Detail,
		}
	case "foreign_key_violation":
		return &storageerr.Error{
			Message: pqerr.Message, Code: storageerr.CodeForeignKeyViolation,
			Constraint: pqerr.Constraint, Table: pqerr.Table,
		}
	case "not_null_violation":
		return &storageerr.Error{
			Message: fmt.Sprintf("no value was provided for %s", pqerr.Column),
			Code:    storageerr.CodeNotNullViolation, Column: pqerr.Column, Table: pqerr.Table,
		}
	case "check_violation":
		if msg := storageerr.ConstraintMessage(pqerr.Constraint); msg != "" {
			return &storageerr.Error{Message: msg, Code: storageerr.CodeCheckViolation, Constraint: pqerr.Constraint, Table: pqerr.Table}
		}
		return &storageerr.Error{Message: pqerr.Message, Code: storageerr.CodeCheckViolation, Constraint: pqerr.Constraint, Table: pqerr.Table}
	case "lock_not_available":
		return &storageerr.Error{Message: pqerr.Message, Code: storageerr.CodeLockNotAvailable}
	default:
		return &storageerr.Error{Message: pqerr.Message, Severity: pqerr.Severity, Table: pqerr.Table}
	}
}

func orValue(col string) string {
	if col == "" {
		return "value"
	}
	return col
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func autoIncrement(c storage.ColumnDef) string {
	if c.Type == storage.TypeInt {
		return "SERIAL PRIMARY KEY"
	}
	return "BIGSERIAL PRIMARY KEY"
}

// New constructs a Storage Port backed by PostgreSQL via github.com/lib/pq.
func New() storage.Port {
	return storage.NewSQLPort(storage.Config{
		Dialect:           storage.DialectPostgres,
		DriverName:        "postgres",
		QuoteChar:         [2]byte{'"', '"'},
		NowFn:             "now()",
		SupportsReturning: true,
		AutoIncrement:     autoIncrement,
		Placeholder:       placeholder,
		Classifier:        Classify,
		RowLock:           "FOR UPDATE",
	})
}
