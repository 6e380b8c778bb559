// Package mysql is the Storage Port driver for MySQL/MariaDB, wired from
// github.com/go-sql-driver/mysql — the MySQL driver rudder-server carries
// as a transitive dependency for its warehouse integrations.
package mysql

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/Shyp/jobqueue/storage"
	"github.com/Shyp/jobqueue/storageerr"
)

// MySQL error numbers, see https://dev.mysql.com/doc/mysql-errors/.
const (
	erDupEntry          = 1062
	erNoReferencedRow   = 1452
	erBadNullError      = 1048
	erCheckConstraint   = 3819
	erLockWaitTimeout   = 1205
)

// Classify turns a *mysql.MySQLError into the dialect-neutral
// *storageerr.Error, the MySQL analogue of storage/postgres.Classify.
func Classify(err error) *storageerr.Error {
	var merr *mysql.MySQLError
	if !errors.As(err, &merr) {
		return nil
	}
	switch merr.Number {
	case erDupEntry:
		return &storageerr.Error{Message: "a row already exists with that value", Code: storageerr.CodeUniqueViolation}
	case erNoReferencedRow:
		return &storageerr.Error{Message: merr.Message, Code: storageerr.CodeForeignKeyViolation}
	case erBadNullError:
		return &storageerr.Error{Message: merr.Message, Code: storageerr.CodeNotNullViolation}
	case erCheckConstraint:
		return &storageerr.Error{Message: merr.Message, Code: storageerr.CodeCheckViolation}
	case erLockWaitTimeout:
		return &storageerr.Error{Message: merr.Message, Code: storageerr.CodeLockNotAvailable}
	default:
		return &storageerr.Error{Message: merr.Message, Code: fmt.Sprintf("%d", merr.Number)}
	}
}

func autoIncrement(c storage.ColumnDef) string {
	t := string(c.Type)
	if c.Type == storage.TypeBigInt {
		t = "BIGINT"
	}
	unsigned := ""
	if c.Unsigned {
		unsigned = " UNSIGNED"
	}
	return t + unsigned + " AUTO_INCREMENT PRIMARY KEY"
}

// New constructs a Storage Port backed by MySQL via
// github.com/go-sql-driver/mysql.
func New() storage.Port {
	return storage.NewSQLPort(storage.Config{
		Dialect:       storage.DialectMySQL,
		DriverName:    "mysql",
		QuoteChar:     [2]byte{'`', '`'},
		NowFn:         "NOW()",
		AutoIncrement: autoIncrement,
		// go-sql-driver/mysql accepts '?' placeholders natively.
		Placeholder: nil,
		Classifier:  Classify,
		RowLock:     "FOR UPDATE",
	})
}
