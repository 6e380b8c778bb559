// Package storage defines the Storage Port: the abstract contract for SQL
// exec/query, transactions, DDL, and placeholder dialect that spec.md §4.1
// and §6 require every relational backend to satisfy.
//
// This generalizes rickover's models/db package, which hardcoded a single
// *sql.DB connection shared by Postgres-specific prepared statements, into
// a dialect-agnostic interface that the Schema Provisioner, Dispatcher, and
// Execution Loop can all depend on without knowing which database is behind
// it.
package storage

import (
	"context"
	"database/sql"
)

// Dialect names a SQL backend. Drivers register themselves under one of
// these so the rest of the module can branch on behavior (placeholder
// style, CURRENT_TIMESTAMP spelling, row-lock syntax) without importing a
// specific driver package.
type Dialect string

const (
	DialectPostgres = Dialect("postgres")
	DialectMySQL    = Dialect("mysql")
	DialectSQLite   = Dialect("sqlite")
	DialectMSSQL    = Dialect("mssql")
	// DialectOracle is named by spec.md §4.1 but no driver ships with this
	// module — see DESIGN.md for why.
	DialectOracle = Dialect("oracle")
)

// Type is the canonical, dialect-neutral column type vocabulary from
// spec.md §4.1.
type Type string

const (
	TypeBigInt    = Type("BIGINT")
	TypeInt       = Type("INT")
	TypeVarChar   = Type("VARCHAR")
	TypeText      = Type("TEXT")
	TypeLongText  = Type("LONGTEXT")
	TypeTimestamp = Type("TIMESTAMP")
	TypeBoolean   = Type("BOOLEAN")
)

// ColumnDef is the language-neutral column descriptor spec.md §4.1 requires;
// each driver translates it to its own dialect.
type ColumnDef struct {
	Name          string
	Type          Type
	Size          int
	Unsigned      bool
	AutoIncrement bool
	Nullable      bool
	// Default, if non-empty, is either a literal or the sentinel
	// "CURRENT_TIMESTAMP", which each dialect translates to its own
	// now-function (e.g. GETDATE() on SQL Server).
	Default string
}

const DefaultCurrentTimestamp = "CURRENT_TIMESTAMP"

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting read helpers work
// inside or outside a transaction.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx is the transaction handle returned by Port.Begin.
type Tx interface {
	Queryer
	Commit() error
	Rollback() error
}

// Port is the abstract contract every relational backend satisfies. Column
// definitions, placeholder rewriting, and priority ordering are all
// centralized here so the Execution Loop and Schema Provisioner remain
// dialect-free, per the Design Notes ("Centralize dialect differences").
type Port interface {
	Queryer

	Dialect() Dialect
	DB() *sql.DB

	Connect(ctx context.Context, dsn string, maxConns int) error
	Disconnect() error

	Begin(ctx context.Context) (Tx, error)

	// Insert inserts a row into table with the given column->value map and
	// returns the new row's id (LastInsertID semantics; Postgres drivers
	// implement this with RETURNING id).
	Insert(ctx context.Context, table string, values map[string]any) (int64, error)
	// Update updates the row in table identified by idColumn=id with the
	// given column->value map.
	Update(ctx context.Context, table string, idColumn string, id any, values map[string]any) error
	// Delete deletes the row in table identified by column=value.
	Delete(ctx context.Context, table string, column string, value any) (int64, error)

	TableExists(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, name string, columns []ColumnDef) error
	DropTable(ctx context.Context, name string) error
	TruncateTable(ctx context.Context, name string) error

	// Exec runs raw DDL/administrative SQL (index creation, foreign keys)
	// that doesn't fit the CRUD helpers above.
	Exec(ctx context.Context, query string, args ...any) error

	QuoteIdentifier(name string) string

	// Rebind rewrites a query written with '?' placeholders into this
	// dialect's placeholder style.
	Rebind(query string) string

	// PriorityCase renders a CASE expression that orders the named priority
	// column urgent < high < normal < low, for dialects lacking FIELD().
	PriorityCase(column string) string

	// NowExpr renders this dialect's current-timestamp function, used to
	// translate storage.DefaultCurrentTimestamp column defaults.
	NowExpr() string

	// RowLockClause renders the trailing row-locking clause leaseNext appends
	// to its SELECT so two workers can't lease the same job: "FOR UPDATE" on
	// postgres and mysql. It is empty on sqlite and mssql, where the SELECT
	// then takes no explicit row lock.
	RowLockClause() string
}

// ErrNotConnected is returned by operations attempted before Connect.
type ErrNotConnected struct{}

func (ErrNotConnected) Error() string { return "storage: not connected" }
