package schema_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shyp/jobqueue/schema"
	"github.com/Shyp/jobqueue/storage"
)

// fakePort is a minimal in-memory storage.Port used to assert the Schema
// Provisioner's idempotent create-if-missing behavior without a real
// database, the same role go-sqlmock plays for the SQL-level tests but
// scoped to DDL call tracking instead of query text.
type fakePort struct {
	dialect       storage.Dialect
	existingTables map[string]bool
	created       []string
	execed        []string
}

func newFakePort(dialect storage.Dialect, existing ...string) *fakePort {
	p := &fakePort{dialect: dialect, existingTables: map[string]bool{}}
	for _, name := range existing {
		p.existingTables[name] = true
	}
	return p
}

func (p *fakePort) Dialect() storage.Dialect { return p.dialect }
func (p *fakePort) DB() *sql.DB              { return nil }
func (p *fakePort) Connect(context.Context, string, int) error { return nil }
func (p *fakePort) Disconnect() error                          { return nil }
func (p *fakePort) Begin(context.Context) (storage.Tx, error)   { return nil, nil }
func (p *fakePort) Insert(context.Context, string, map[string]any) (int64, error) {
	return 0, nil
}
func (p *fakePort) Update(context.Context, string, string, any, map[string]any) error { return nil }
func (p *fakePort) Delete(context.Context, string, string, any) (int64, error)        { return 0, nil }
func (p *fakePort) TableExists(_ context.Context, name string) (bool, error) {
	return p.existingTables[name], nil
}
func (p *fakePort) CreateTable(_ context.Context, name string, _ []storage.ColumnDef) error {
	p.created = append(p.created, name)
	p.existingTables[name] = true
	return nil
}
func (p *fakePort) DropTable(context.Context, string) error     { return nil }
func (p *fakePort) TruncateTable(context.Context, string) error { return nil }
func (p *fakePort) Exec(_ context.Context, query string, _ ...any) error {
	p.execed = append(p.execed, query)
	return nil
}
func (p *fakePort) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, nil
}
func (p *fakePort) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }
func (p *fakePort) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (p *fakePort) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (p *fakePort) Rebind(query string) string         { return query }
func (p *fakePort) PriorityCase(column string) string  { return "CASE " + column + " END" }
func (p *fakePort) NowExpr() string                    { return "now()" }
func (p *fakePort) RowLockClause() string              { return "FOR UPDATE" }

func TestEnsureCreatesBothTablesWhenMissing(t *testing.T) {
	p := newFakePort(storage.DialectPostgres)
	require.NoError(t, schema.Ensure(context.Background(), p))
	assert.ElementsMatch(t, []string{schema.JobsTable, schema.FailedJobsTable}, p.created)
	assert.True(t, p.existingTables[schema.JobsTable])
	assert.True(t, p.existingTables[schema.FailedJobsTable])
}

func TestEnsureIsIdempotent(t *testing.T) {
	p := newFakePort(storage.DialectPostgres, schema.JobsTable, schema.FailedJobsTable)
	require.NoError(t, schema.Ensure(context.Background(), p))
	assert.Empty(t, p.created)
}

func TestEnsureSkipsForeignKeyOnSQLite(t *testing.T) {
	p := newFakePort(storage.DialectSQLite)
	require.NoError(t, schema.Ensure(context.Background(), p))
	for _, stmt := range p.execed {
		assert.NotContains(t, stmt, "FOREIGN KEY")
	}
}

func TestEnsureAddsForeignKeyOnPostgres(t *testing.T) {
	p := newFakePort(storage.DialectPostgres)
	require.NoError(t, schema.Ensure(context.Background(), p))
	found := false
	for _, stmt := range p.execed {
		if strings.Contains(stmt, "FOREIGN KEY") {
			found = true
		}
	}
	assert.True(t, found)
}
