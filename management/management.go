// Package management is the Management Surface (spec.md §4.7): retrying
// failed jobs, clearing old failed_jobs rows, inspecting stats, and the
// SPEC_FULL.md-added ListFailed/Purge operations that fill the gap
// rickover's server/replay_job.go and archived_jobs admin paths covered.
package management

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Shyp/jobqueue/models"
	"github.com/Shyp/jobqueue/schema"
	"github.com/Shyp/jobqueue/storage"
)

var ErrNotFound = errors.New("management: job not found")
var ErrRetryBudgetExhausted = errors.New("management: retry_count already at max_retries")

// Surface wraps a Storage Port with the job-queue's administrative
// operations.
type Surface struct {
	port storage.Port
}

func New(port storage.Port) *Surface {
	return &Surface{port: port}
}

// RetryJob requeues a single failed job back to pending, the way rickover's
// server/replay_job.go re-enqueues an archived job, but only when the job's
// retry budget isn't already spent: retry_count must be strictly below
// max_retries, and the requeue increments retry_count rather than resetting
// it, so a job can never exceed the budget it was dispatched with.
func (s *Surface) RetryJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.getByUUID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.StatusFailed {
		return fmt.Errorf("management: job %s is not in failed state (status=%s)", id, job.Status)
	}
	if job.RetryCount >= job.MaxRetries {
		return fmt.Errorf("%w: job %s (retry_count=%d, max_retries=%d)", ErrRetryBudgetExhausted, id, job.RetryCount, job.MaxRetries)
	}
	return s.port.Update(ctx, schema.JobsTable, "id", job.ID, map[string]any{
		"status":      string(models.StatusPending),
		"retry_count": job.RetryCount + 1,
		"pid":         "",
	})
}

// RetryAllFailed requeues every failed job whose retry budget isn't already
// spent, incrementing retry_count rather than resetting it.
func (s *Surface) RetryAllFailed(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(
		"UPDATE %s SET status = ?, retry_count = retry_count + 1, pid = ? WHERE status = ? AND retry_count < max_retries",
		schema.JobsTable,
	)
	res, err := s.port.ExecContext(ctx, query, string(models.StatusPending), "", string(models.StatusFailed))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearFailedJobs deletes failed_jobs rows older than daysOld days. The jobs
// rows they refer to are not deleted.
func (s *Surface) ClearFailedJobs(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -daysOld)
	query := fmt.Sprintf("DELETE FROM %s WHERE failed_at < ?", schema.FailedJobsTable)
	res, err := s.port.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListFailed lists failed_jobs rows, most recent first, for operator
// inspection. **(added)** per SPEC_FULL.md §4.7.
func (s *Surface) ListFailed(ctx context.Context, limit, offset int) ([]*models.FailedJob, error) {
	query := fmt.Sprintf(
		"SELECT id, uuid, job_id, exception, payload, failed_at FROM %s ORDER BY failed_at DESC LIMIT ? OFFSET ?",
		schema.FailedJobsTable,
	)
	rows, err := s.port.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.FailedJob
	for rows.Next() {
		fj := new(models.FailedJob)
		var uuidStr string
		if err := rows.Scan(&fj.ID, &uuidStr, &fj.JobID, &fj.Exception, &fj.Payload, &fj.FailedAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, fmt.Errorf("management: malformed uuid %q: %w", uuidStr, err)
		}
		fj.UUID = id
		out = append(out, fj)
	}
	return out, rows.Err()
}

// Purge deletes a single terminal job and its failed_jobs row, the
// companion to ClearFailedJobs named in SPEC_FULL.md §4.7.
func (s *Surface) Purge(ctx context.Context, id uuid.UUID) error {
	job, err := s.getByUUID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.StatusCompleted && job.Status != models.StatusFailed {
		return fmt.Errorf("management: job %s is not terminal (status=%s)", id, job.Status)
	}
	if _, err := s.port.Delete(ctx, schema.FailedJobsTable, "job_id", job.ID); err != nil {
		return err
	}
	if _, err := s.port.Delete(ctx, schema.JobsTable, "id", job.ID); err != nil {
		return err
	}
	return nil
}

func (s *Surface) getByUUID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := fmt.Sprintf("SELECT id, status, retry_count, max_retries FROM %s WHERE uuid = ?", schema.JobsTable)
	row := s.port.QueryRowContext(ctx, query, id.String())
	job := new(models.Job)
	if err := row.Scan(&job.ID, &job.Status, &job.RetryCount, &job.MaxRetries); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	return job, nil
}
