// Package execution is the Execution Loop (spec.md §4.6): lease_next,
// run(job), and the outer should_run poll loop a worker process drives.
//
// Grounded on rickover's dequeuer.Dequeuer.Work for the jitter/backoff
// shape and services.HandleStatusCallback/handleFailedCallback for the
// status-transition logging and metrics texture, adapted to in-process
// callable execution instead of an HTTP callback round trip.
package execution

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Shyp/jobqueue/models"
	"github.com/Shyp/jobqueue/schema"
	"github.com/Shyp/jobqueue/storage"
)

const jobColumns = `id, uuid, name, callable_type, callable,
	namespace, object_instance, path_files, params,
	status, priority, pid,
	timeout, retry_count, max_retries, retry_delay,
	started_at, completed_at, created_at, updated_at`

// leaseNext implements spec.md §4.6's lease_next: select the single oldest
// pending row with the smallest priority rank under FOR UPDATE, advance it
// to processing, and return the row as selected with Status and Pid set to
// the values just written. Returns (nil, nil) when no row is available.
func leaseNext(ctx context.Context, port storage.Port, workerPid string) (*models.Job, error) {
	tx, err := port.Begin(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s
WHERE status = ?
AND (retry_count < max_retries OR retry_count = 0)
ORDER BY %s, created_at ASC, id ASC
LIMIT 1
%s`, jobColumns, schema.JobsTable, port.PriorityCase("priority"), port.RowLockClause())

	row := tx.QueryRowContext(ctx, query, string(models.StatusPending))
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// updated_at is set to NowExpr() directly in the UPDATE rather than
	// bound as a placeholder value, since each dialect spells "now" its
	// own way (spec.md §4.1's dialect-drift example).
	setClauses := fmt.Sprintf("status = ?, pid = ?, updated_at = %s", port.NowExpr())
	args := []any{string(models.StatusProcessing), workerPid}
	if job.StartedAt == nil {
		setClauses += fmt.Sprintf(", started_at = %s", port.NowExpr())
	}
	updateQuery := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", schema.JobsTable, setClauses)
	args = append(args, job.ID)

	if _, err := tx.ExecContext(ctx, updateQuery, args...); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	job.Status = models.StatusProcessing
	job.Pid = workerPid
	return job, nil
}

func scanJob(row interface {
	Scan(dest ...any) error
}) (*models.Job, error) {
	job := new(models.Job)
	var uuidStr string
	var namespace, pathFiles, pid sql.NullString
	var objectInstance, params sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &uuidStr, &job.Name, &job.CallableType, &job.Callable,
		&namespace, &objectInstance, &pathFiles, &params,
		&job.Status, &job.Priority, &pid,
		&job.Timeout, &job.RetryCount, &job.MaxRetries, &job.RetryDelay,
		&startedAt, &completedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("execution: malformed uuid %q: %w", uuidStr, err)
	}
	job.UUID = id
	job.Namespace = namespace.String
	job.ObjectInstance = []byte(objectInstance.String)
	job.PathFiles = pathFiles.String
	job.Params = []byte(params.String)
	job.Pid = pid.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}
