package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Shyp/jobqueue/storageerr"
)

// Config describes how one dialect differs from the others. Each driver
// package (storage/postgres, storage/mysql, storage/sqlite, storage/mssql)
// builds a *Config and hands it to NewSQLPort; this is the single place the
// "per-driver dialect drift" design note (spec.md §4.1/§9) is centralized.
type Config struct {
	Dialect        Dialect
	DriverName     string
	QuoteChar      [2]byte // e.g. '"','"' for postgres/sqlite, '`','`' for mysql
	NowFn          string  // e.g. "now()", "GETDATE()"
	SupportsReturning bool // postgres via RETURNING id; other dialects read LastInsertId
	AutoIncrement  func(c ColumnDef) string
	Placeholder    func(n int) string // renders the nth ('?'-indexed from 1) placeholder
	Classifier     storageerr.Classifier
	// RowLock is the clause leaseNext appends to its SELECT to lock the
	// chosen row, e.g. "FOR UPDATE" on postgres/mysql. Empty for dialects
	// with no such clause.
	RowLock string
}

// sqlPort is the dialect-agnostic engine behind every concrete Port. It
// implements everything in terms of database/sql plus the dialect Config,
// so storage/postgres, storage/mysql, storage/sqlite, and storage/mssql are
// each only a few dozen lines of glue.
type sqlPort struct {
	cfg Config
	mu  sync.Mutex
	db  *sql.DB
}

// NewSQLPort builds a Port for the given dialect configuration. Drivers call
// this from their own New functions after importing the relevant
// database/sql driver package for its side-effecting init().
func NewSQLPort(cfg Config) Port {
	return &sqlPort{cfg: cfg}
}

func (p *sqlPort) Dialect() Dialect { return p.cfg.Dialect }
func (p *sqlPort) DB() *sql.DB      { return p.db }

func (p *sqlPort) Connect(ctx context.Context, dsn string, maxConns int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	db, err := sql.Open(p.cfg.DriverName, dsn)
	if err != nil {
		return storageerr.Classify(string(p.cfg.Dialect), p.cfg.Classifier, err)
	}
	db.SetMaxOpenConns(maxConns)
	if maxConns > 10 {
		db.SetMaxIdleConns(maxConns - 2)
	}
	if err := db.PingContext(ctx); err != nil {
		return storageerr.Classify(string(p.cfg.Dialect), p.cfg.Classifier, err)
	}
	p.db = db
	return nil
}

func (p *sqlPort) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *sqlPort) conn() *sql.DB {
	return p.db
}

func (p *sqlPort) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.conn().QueryContext(ctx, p.Rebind(query), args...)
	if err != nil {
		return nil, storageerr.Classify(string(p.cfg.Dialect), p.cfg.Classifier, err)
	}
	return rows, nil
}

func (p *sqlPort) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return p.conn().QueryRowContext(ctx, p.Rebind(query), args...)
}

func (p *sqlPort) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := p.conn().ExecContext(ctx, p.Rebind(query), args...)
	if err != nil {
		return nil, storageerr.Classify(string(p.cfg.Dialect), p.cfg.Classifier, err)
	}
	return res, nil
}

func (p *sqlPort) Exec(ctx context.Context, query string, args ...any) error {
	_, err := p.ExecContext(ctx, query, args...)
	return err
}

type sqlTx struct {
	*sql.Tx
	port *sqlPort
}

func (t *sqlTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.Tx.QueryContext(ctx, t.port.Rebind(query), args...)
	if err != nil {
		return nil, storageerr.Classify(string(t.port.cfg.Dialect), t.port.cfg.Classifier, err)
	}
	return rows, nil
}

func (t *sqlTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.Tx.QueryRowContext(ctx, t.port.Rebind(query), args...)
}

func (t *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.Tx.ExecContext(ctx, t.port.Rebind(query), args...)
	if err != nil {
		return nil, storageerr.Classify(string(t.port.cfg.Dialect), t.port.cfg.Classifier, err)
	}
	return res, nil
}

func (t *sqlTx) Commit() error {
	return t.Tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.Tx.Rollback()
}

func (p *sqlPort) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, storageerr.Classify(string(p.cfg.Dialect), p.cfg.Classifier, err)
	}
	return &sqlTx{Tx: tx, port: p}, nil
}

func (p *sqlPort) QuoteIdentifier(name string) string {
	return string(p.cfg.QuoteChar[0]) + name + string(p.cfg.QuoteChar[1])
}

func (p *sqlPort) NowExpr() string {
	return p.cfg.NowFn
}

func (p *sqlPort) RowLockClause() string {
	return p.cfg.RowLock
}

func (p *sqlPort) PriorityCase(column string) string {
	return fmt.Sprintf(
		"CASE %s WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 WHEN 'low' THEN 3 ELSE 4 END",
		column,
	)
}

// Rebind turns '?' placeholders into this dialect's style. Postgres uses
// numbered placeholders through its Config.Placeholder hook; MySQL, SQLite,
// and MSSQL (via go-mssqldb ordinal compat mode) accept '?' directly.
func (p *sqlPort) Rebind(query string) string {
	if p.cfg.Placeholder == nil {
		return query
	}
	var sb strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteString(p.cfg.Placeholder(n))
		} else {
			sb.WriteByte(query[i])
		}
	}
	return sb.String()
}

func (p *sqlPort) columnClause(c ColumnDef) string {
	var sb strings.Builder
	sb.WriteString(p.QuoteIdentifier(c.Name))
	sb.WriteByte(' ')

	if c.AutoIncrement && p.cfg.AutoIncrement != nil {
		// Auto-increment columns render entirely through the dialect hook
		// (e.g. "BIGSERIAL PRIMARY KEY" on Postgres, "BIGINT AUTO_INCREMENT
		// PRIMARY KEY" on MySQL) since the syntax isn't expressible as a
		// generic TYPE + modifiers suffix.
		sb.WriteString(p.cfg.AutoIncrement(c))
		return sb.String()
	}

	switch c.Type {
	case TypeVarChar:
		size := c.Size
		if size == 0 {
			size = 255
		}
		sb.WriteString("VARCHAR(" + strconv.Itoa(size) + ")")
	default:
		sb.WriteString(string(c.Type))
	}
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		def := c.Default
		if def == DefaultCurrentTimestamp {
			def = p.cfg.NowFn
		}
		sb.WriteString(" DEFAULT " + def)
	}
	return sb.String()
}

func (p *sqlPort) TableExists(ctx context.Context, name string) (bool, error) {
	row := p.QueryRowContext(ctx, "SELECT 1 FROM "+p.QuoteIdentifier(name)+" WHERE 1=0")
	var dummy int
	err := row.Scan(&dummy)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		// Any other error (undefined table / no such table) means it
		// doesn't exist yet; every dialect's "table not found" driver error
		// ends up here rather than requiring per-dialect information_schema
		// queries.
		return false, nil
	}
	return true, nil
}

func (p *sqlPort) CreateTable(ctx context.Context, name string, columns []ColumnDef) error {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = p.columnClause(c)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", p.QuoteIdentifier(name), strings.Join(parts, ", "))
	return p.Exec(ctx, ddl)
}

func (p *sqlPort) DropTable(ctx context.Context, name string) error {
	return p.Exec(ctx, "DROP TABLE "+p.QuoteIdentifier(name))
}

func (p *sqlPort) TruncateTable(ctx context.Context, name string) error {
	return p.Exec(ctx, "DELETE FROM "+p.QuoteIdentifier(name))
}

func (p *sqlPort) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = p.QuoteIdentifier(c)
		placeholders[i] = "?"
		args[i] = values[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		p.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	if p.cfg.SupportsReturning {
		query += " RETURNING id"
		var id int64
		err := p.QueryRowContext(ctx, query, args...).Scan(&id)
		if err != nil {
			return 0, storageerr.Classify(string(p.cfg.Dialect), p.cfg.Classifier, err)
		}
		return id, nil
	}

	res, err := p.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (p *sqlPort) Update(ctx context.Context, table, idColumn string, id any, values map[string]any) error {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = p.QuoteIdentifier(c) + " = ?"
		args = append(args, values[c])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		p.QuoteIdentifier(table), strings.Join(sets, ", "), p.QuoteIdentifier(idColumn))
	_, err := p.ExecContext(ctx, query, args...)
	return err
}

func (p *sqlPort) Delete(ctx context.Context, table, column string, value any) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", p.QuoteIdentifier(table), p.QuoteIdentifier(column))
	res, err := p.ExecContext(ctx, query, value)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
