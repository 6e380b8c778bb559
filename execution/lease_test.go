package execution

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shyp/jobqueue/models"
	"github.com/Shyp/jobqueue/storage"
)

// fakePort wraps a sqlmock-backed *sql.DB so leaseNext can run its real
// transaction against a mocked driver. *sql.Tx already satisfies
// storage.Tx's method set, so no wrapper type is needed here.
type fakePort struct {
	db *sql.DB
}

func (p *fakePort) Dialect() storage.Dialect { return storage.DialectPostgres }
func (p *fakePort) DB() *sql.DB              { return p.db }
func (p *fakePort) Connect(context.Context, string, int) error { return nil }
func (p *fakePort) Disconnect() error                          { return nil }
func (p *fakePort) Begin(ctx context.Context) (storage.Tx, error) {
	return p.db.BeginTx(ctx, nil)
}
func (p *fakePort) Insert(context.Context, string, map[string]any) (int64, error) { return 0, nil }
func (p *fakePort) Update(context.Context, string, string, any, map[string]any) error {
	return nil
}
func (p *fakePort) Delete(context.Context, string, string, any) (int64, error) { return 0, nil }
func (p *fakePort) TableExists(context.Context, string) (bool, error)          { return true, nil }
func (p *fakePort) CreateTable(context.Context, string, []storage.ColumnDef) error {
	return nil
}
func (p *fakePort) DropTable(context.Context, string) error     { return nil }
func (p *fakePort) TruncateTable(context.Context, string) error { return nil }
func (p *fakePort) Exec(context.Context, string, ...any) error  { return nil }
func (p *fakePort) QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, q, args...)
}
func (p *fakePort) QueryRowContext(ctx context.Context, q string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, q, args...)
}
func (p *fakePort) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return p.db.ExecContext(ctx, q, args...)
}
func (p *fakePort) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (p *fakePort) Rebind(query string) string         { return query }
func (p *fakePort) PriorityCase(column string) string {
	return "CASE " + column + " WHEN 'urgent' THEN 0 ELSE 4 END"
}
func (p *fakePort) NowExpr() string       { return "now()" }
func (p *fakePort) RowLockClause() string { return "FOR UPDATE" }

func jobRow(id int64, status models.Status, priority models.Priority) []driverValue {
	return []driverValue{
		id, "11111111-1111-1111-1111-111111111111", "test-job", "function", "testjob",
		nil, nil, nil, "{}",
		string(status), string(priority), nil,
		60, 0, 3, 1,
		nil, nil, time.Now(), time.Now(),
	}
}

type driverValue = any

func TestLeaseNextReturnsNoneWhenEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	p := &fakePort{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{
		"id", "uuid", "name", "callable_type", "callable",
		"namespace", "object_instance", "path_files", "params",
		"status", "priority", "pid",
		"timeout", "retry_count", "max_retries", "retry_delay",
		"started_at", "completed_at", "created_at", "updated_at",
	}))
	mock.ExpectRollback()

	job, err := leaseNext(context.Background(), p, "123")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaseNextAdvancesRowToProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	p := &fakePort{db: db}

	cols := []string{
		"id", "uuid", "name", "callable_type", "callable",
		"namespace", "object_instance", "path_files", "params",
		"status", "priority", "pid",
		"timeout", "retry_count", "max_retries", "retry_delay",
		"started_at", "completed_at", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(cols).AddRow(jobRow(1, models.StatusPending, models.PriorityHigh)...)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := leaseNext(context.Background(), p, "123")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.StatusProcessing, job.Status)
	assert.Equal(t, "123", job.Pid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
