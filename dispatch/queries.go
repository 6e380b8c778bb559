package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shyp/jobqueue/models"
	"github.com/Shyp/jobqueue/schema"
	"github.com/Shyp/jobqueue/storage"
)

// insertInTx writes a row into the jobs table inside an open transaction,
// the same shape as rickover's jobs.Create prepared INSERT, but built
// generically since the Storage Port's '?' placeholders get rebound by the
// underlying Tx per dialect.
func insertInTx(ctx context.Context, tx storage.Tx, values map[string]any) (int64, error) {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = values[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.JobsTable, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	// Drivers without LastInsertId support (lib/pq) report an error here
	// even though the row was written; the id is then returned as 0.
	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil
	}
	return id, nil
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
		return nil, fmt.Errorf("dispatch: malformed uuid %q: %w", uuidStr, err)
	}
	job.UUID = id
	job.Namespace = namespace.String
	job.ObjectInstance = []byte(objectInstance.String)
	job.PathFiles = pathFiles.String
	job.Params = json.RawMessage(params.String)
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

const jobColumns = `id, uuid, name, callable_type, callable,
	namespace, object_instance, path_files, params,
	status, priority, pid,
	timeout, retry_count, max_retries, retry_delay,
	started_at, completed_at, created_at, updated_at`

func getJobByUUID(ctx context.Context, port storage.Port, id uuid.UUID) (*models.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE uuid = ?", jobColumns, schema.JobsTable)
	row := port.QueryRowContext(ctx, query, id.String())
	return scanJob(row)
}

func getJobStats(ctx context.Context, port storage.Port) (*JobStats, error) {
	stats := &JobStats{}

	countQuery := fmt.Sprintf("SELECT status, COUNT(*) FROM %s GROUP BY status", schema.JobsTable)
	rows, err := port.QueryContext(ctx, countQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case models.StatusPending:
			stats.Pending = count
		case models.StatusProcessing:
			stats.Processing = count
		case models.StatusCompleted:
			stats.Completed = count
		case models.StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	avgQuery := fmt.Sprintf(
		"SELECT created_at, completed_at FROM %s WHERE status = ? AND completed_at IS NOT NULL",
		schema.JobsTable,
	)
	avgRows, err := port.QueryContext(ctx, avgQuery, string(models.StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer avgRows.Close()

	var total time.Duration
	var n int
	for avgRows.Next() {
		var created, completed time.Time
		if err := avgRows.Scan(&created, &completed); err != nil {
			return nil, err
		}
		total += completed.Sub(created)
		n++
	}
	if err := avgRows.Err(); err != nil {
		return nil, err
	}
	if n > 0 {
		stats.AvgCompleteSecs = total.Seconds() / float64(n)
	}
	return stats, nil
}
