// Package storageerr implements the single StorageError kind spec.md §7
// requires: every driver-specific failure is normalized into an *Error
// carrying the same fields, regardless of which dialect raised it.
//
// This generalizes the classification idiom in rickover's
// github.com/Shyp/go-dberror (built for a single Postgres dialect) across
// the dialects the Storage Port supports.
package storageerr

import "fmt"

// Well-known error codes, shared across dialects where the concept exists.
// Dialect classifiers translate their driver's native error into one of
// these when a mapping exists. Otherwise Code is left empty, except on
// MySQL, where it holds the driver's numeric error code as a string.
const (
	CodeUniqueViolation     = "unique_violation"
	CodeForeignKeyViolation = "foreign_key_violation"
	CodeNotNullViolation    = "not_null_violation"
	CodeCheckViolation      = "check_violation"
	CodeLockNotAvailable    = "lock_not_available"
)

// Error is a human-readable, dialect-independent database error.
type Error struct {
	Message    string
	Code       string
	Constraint string
	Severity   string
	Table      string
	Detail     string
	Column     string
	// Dialect names which driver produced this error, e.g. "postgres".
	Dialect string
	// cause is the original driver error, preserved for Unwrap.
	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New wraps a raw error with a dialect tag and message, used by classifiers
// that don't recognize the specific driver error type.
func New(dialect string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{
		Message: cause.Error(),
		Dialect: dialect,
		cause:   cause,
	}
}

// Classifier turns a driver-native error into a normalized *Error. Each
// dialect package registers its own; see storage/postgres, storage/mysql,
// storage/sqlite, storage/mssql.
type Classifier func(err error) *Error

// Constraint lets callers register a custom message for a CHECK constraint
// violation, mirroring go-dberror's Constraint registration (used by
// rickover's jobs.Setup for jobs_concurrency_check/jobs_attempts_check).
type Constraint struct {
	Name    string
	Message string
}

var constraintMessages = map[string]string{}

// RegisterConstraint records a human message for a named CHECK constraint.
func RegisterConstraint(c Constraint) {
	constraintMessages[c.Name] = c.Message
}

// ConstraintMessage returns the registered message for name, or "" if none
// was registered.
func ConstraintMessage(name string) string {
	return constraintMessages[name]
}

// Classify runs the dialect's classifier over err, falling back to a plain
// wrap if the classifier doesn't recognize it (or is nil).
func Classify(dialect string, classify Classifier, err error) error {
	if err == nil {
		return nil
	}
	if classify != nil {
		if e := classify(err); e != nil {
			e.Dialect = dialect
			return e
		}
	}
	return New(dialect, err)
}

func (e *Error) String() string {
	return fmt.Sprintf("storageerr: %s (code=%s dialect=%s table=%s)", e.Message, e.Code, e.Dialect, e.Table)
}
