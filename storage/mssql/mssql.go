// Package mssql is the Storage Port driver for SQL Server, wired from
// github.com/denisenkom/go-mssqldb — the driver rudder-server uses in
// warehouse/integrations/mssql.
package mssql

import (
	"errors"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/Shyp/jobqueue/storage"
	"github.com/Shyp/jobqueue/storageerr"
)

// SQL Server error numbers, see sys.messages.
const (
	msUniqueViolation = 2627
	msForeignKey      = 547
	msNotNull         = 515
	msLockTimeout     = 1222
)

// Classify turns a mssql.Error into the dialect-neutral *storageerr.Error.
func Classify(err error) *storageerr.Error {
	var merr mssql.Error
	if !errors.As(err, &merr) {
		return nil
	}
	switch merr.Number {
	case msUniqueViolation:
		return &storageerr.Error{Message: "a row already exists with that value", Code: storageerr.CodeUniqueViolation}
	case msForeignKey:
		return &storageerr.Error{Message: merr.Message, Code: storageerr.CodeForeignKeyViolation}
	case msNotNull:
		return &storageerr.Error{Message: merr.Message, Code: storageerr.CodeNotNullViolation}
	case msLockTimeout:
		return &storageerr.Error{Message: merr.Message, Code: storageerr.CodeLockNotAvailable}
	default:
		return &storageerr.Error{Message: merr.Message}
	}
}

func autoIncrement(storage.ColumnDef) string {
	return "BIGINT IDENTITY(1,1) PRIMARY KEY"
}

// New constructs a Storage Port backed by SQL Server via
// github.com/denisenkom/go-mssqldb. CURRENT_TIMESTAMP defaults translate to
// GETDATE(), per spec.md §4.1's explicit example of dialect drift.
func New() storage.Port {
	return storage.NewSQLPort(storage.Config{
		Dialect:       storage.DialectMSSQL,
		DriverName:    "sqlserver",
		QuoteChar:     [2]byte{'[', ']'},
		NowFn:         "GETDATE()",
		AutoIncrement: autoIncrement,
		Placeholder:   nil,
		Classifier:    Classify,
	})
}
