package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shyp/jobqueue/codec"
	"github.com/Shyp/jobqueue/models"
	"github.com/Shyp/jobqueue/storage"
)

// execCall records one Exec/ExecContext invocation against trackingPort or
// trackingTx, so markCompleted/markRetry/markFailed's raw UPDATE/INSERT
// statements can be asserted on query text and bound args without a
// database.
type execCall struct {
	query string
	args  []any
}

// trackingPort is a minimal storage.Port fake recording Exec/Begin calls so
// transition's status-write branches can be asserted without a database,
// following the same fake-Port shape as schema_test.go and dispatch_test.go.
type trackingPort struct {
	execed []execCall
	tx     *trackingTx
}

// trackingTx is the Tx trackingPort.Begin hands back; markFailed builds its
// two statements directly against it, since storage.Tx has no Update/Insert
// convenience methods.
type trackingTx struct {
	execed     []execCall
	committed  bool
	rolledBack bool
}

func (t *trackingTx) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, nil
}
func (t *trackingTx) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }
func (t *trackingTx) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	t.execed = append(t.execed, execCall{query, args})
	return nil, nil
}
func (t *trackingTx) Commit() error   { t.committed = true; return nil }
func (t *trackingTx) Rollback() error { t.rolledBack = true; return nil }

func (p *trackingPort) Dialect() storage.Dialect { return storage.DialectPostgres }
func (p *trackingPort) DB() *sql.DB              { return nil }
func (p *trackingPort) Connect(context.Context, string, int) error { return nil }
func (p *trackingPort) Disconnect() error                          { return nil }
func (p *trackingPort) Begin(context.Context) (storage.Tx, error) {
	p.tx = &trackingTx{}
	return p.tx, nil
}
func (p *trackingPort) Insert(context.Context, string, map[string]any) (int64, error) {
	return 1, nil
}
func (p *trackingPort) Update(context.Context, string, string, any, map[string]any) error {
	return nil
}
func (p *trackingPort) Delete(context.Context, string, string, any) (int64, error) { return 0, nil }
func (p *trackingPort) TableExists(context.Context, string) (bool, error)          { return true, nil }
func (p *trackingPort) CreateTable(context.Context, string, []storage.ColumnDef) error {
	return nil
}
func (p *trackingPort) DropTable(context.Context, string) error     { return nil }
func (p *trackingPort) TruncateTable(context.Context, string) error { return nil }
func (p *trackingPort) Exec(_ context.Context, query string, args ...any) error {
	p.execed = append(p.execed, execCall{query, args})
	return nil
}
func (p *trackingPort) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, nil
}
func (p *trackingPort) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }
func (p *trackingPort) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (p *trackingPort) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (p *trackingPort) Rebind(query string) string         { return query }
func (p *trackingPort) PriorityCase(column string) string  { return "CASE " + column + " END" }
func (p *trackingPort) NowExpr() string                    { return "now()" }
func (p *trackingPort) RowLockClause() string              { return "FOR UPDATE" }

func newTestJob(maxRetries, retryCount int) *models.Job {
	j := &models.Job{
		ID:         1,
		Name:       "run-test-job",
		Status:     models.StatusProcessing,
		Priority:   models.PriorityNormal,
		Timeout:    5,
		MaxRetries: maxRetries,
		RetryCount: retryCount,
	}
	return j
}

func TestTransitionMarksCompletedOnNilCause(t *testing.T) {
	p := &trackingPort{}
	job := newTestJob(3, 0)

	transition(context.Background(), p, job, nil, clockwork.NewRealClock())

	require.Len(t, p.execed, 1)
	assert.Contains(t, p.execed[0].query, "completed_at")
	assert.Contains(t, p.execed[0].query, "updated_at")
	assert.Equal(t, string(models.StatusCompleted), p.execed[0].args[0])
}

func TestTransitionMarksRetryWhenBudgetRemains(t *testing.T) {
	p := &trackingPort{}
	job := newTestJob(3, 0)

	transition(context.Background(), p, job, errors.New("transient"), clockwork.NewRealClock())

	require.Len(t, p.execed, 1)
	assert.Contains(t, p.execed[0].query, "updated_at")
	assert.Equal(t, string(models.StatusPending), p.execed[0].args[0])
	assert.Equal(t, 1, p.execed[0].args[1])
}

func TestTransitionSleepsRetryDelayOnRetry(t *testing.T) {
	p := &trackingPort{}
	job := newTestJob(3, 0)
	job.RetryDelay = 1

	clock := clockwork.NewFakeClock()
	done := make(chan struct{})
	go func() {
		transition(context.Background(), p, job, errors.New("transient"), clock)
		close(done)
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	<-done

	require.Len(t, p.execed, 1)
}

func TestTransitionDoesNotSleepWhenRetryDelayIsZero(t *testing.T) {
	p := &trackingPort{}
	job := newTestJob(3, 0)
	job.RetryDelay = 0

	// A fake clock with nothing ever advancing it would hang this test if
	// transition called Sleep unconditionally; it returning at all proves
	// the zero-delay guard works.
	transition(context.Background(), p, job, errors.New("transient"), clockwork.NewFakeClock())

	require.Len(t, p.execed, 1)
}

func TestTransitionMarksFailedWhenBudgetExhausted(t *testing.T) {
	p := &trackingPort{}
	job := newTestJob(1, 0)

	transition(context.Background(), p, job, errors.New("still failing"), clockwork.NewRealClock())

	require.NotNil(t, p.tx)
	require.Len(t, p.tx.execed, 2)
	assert.Contains(t, p.tx.execed[0].query, "status")
	assert.Equal(t, string(models.StatusFailed), p.tx.execed[0].args[0])
	assert.Contains(t, p.tx.execed[1].query, "failed_jobs")
	assert.Equal(t, "still failing", p.tx.execed[1].args[2])
	assert.True(t, p.tx.committed)
	assert.False(t, p.tx.rolledBack)
}

func TestTransitionMarksFailedOnTamperedClosure(t *testing.T) {
	p := &trackingPort{}
	job := newTestJob(5, 0)

	transition(context.Background(), p, job, codec.ErrTamperedClosure, clockwork.NewRealClock())

	require.NotNil(t, p.tx)
	assert.True(t, p.tx.committed)
}

func TestPreloadPathFilesMissingFile(t *testing.T) {
	err := preloadPathFiles("/does/not/exist/anywhere.so")
	assert.ErrorIs(t, err, ErrPreloadMissing)
}

func TestPreloadPathFilesEmptyIsNoop(t *testing.T) {
	assert.NoError(t, preloadPathFiles(""))
}

func TestRunInvokesDecodedCallableAndMarksCompleted(t *testing.T) {
	codec.RegisterFunction("execution_test.ok", func(json.RawMessage) (any, error) { return nil, nil })
	p := &trackingPort{}
	job := newTestJob(3, 0)
	job.CallableType = models.CallableFunction
	job.Callable = []byte("execution_test.ok")
	job.Params = []byte("{}")

	run(context.Background(), p, job, clockwork.NewRealClock())

	require.Len(t, p.execed, 1)
	assert.Equal(t, string(models.StatusCompleted), p.execed[0].args[0])
}

func TestRunMarksRetryWhenCallableErrors(t *testing.T) {
	codec.RegisterFunction("execution_test.fails", func(json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	p := &trackingPort{}
	job := newTestJob(3, 0)
	job.CallableType = models.CallableFunction
	job.Callable = []byte("execution_test.fails")
	job.Params = []byte("{}")

	run(context.Background(), p, job, clockwork.NewRealClock())

	require.Len(t, p.execed, 1)
	assert.Equal(t, string(models.StatusPending), p.execed[0].args[0])
}
