package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	metrics "github.com/Shyp/go-simple-metrics"

	"github.com/Shyp/jobqueue/codec"
	"github.com/Shyp/jobqueue/models"
	"github.com/Shyp/jobqueue/retry"
	"github.com/Shyp/jobqueue/schema"
	"github.com/Shyp/jobqueue/storage"
)

// Error kinds from spec.md §7 raised directly by run(job). TamperedClosure
// lives in codec.ErrTamperedClosure and is handled by the retry package.
var (
	ErrPreloadMissing = errors.New("execution: path_files no longer exists")
	ErrJobTimeout     = errors.New("execution: attempt exceeded job timeout")
)

// preloaded records which path_files have already been checked within one
// worker process. The check is existence only (os.Stat): the file's contents
// are not loaded or executed, and a path that passed once is not checked
// again.
var preloaded = map[string]bool{}

func preloadPathFiles(path string) error {
	if path == "" {
		return nil
	}
	if preloaded[path] {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrPreloadMissing, path)
	}
	preloaded[path] = true
	return nil
}

// run executes one leased job under its configured timeout budget and
// applies the resulting status transition, per spec.md §4.6 step "run(job)"
// and §7's retry/terminal classification. clock is the same clockwork.Clock
// the Execution Loop sleeps on, so a retry's backoff can be driven by a fake
// clock in tests.
func run(ctx context.Context, port storage.Port, job *models.Job, clock clockwork.Clock) {
	if err := preloadPathFiles(job.PathFiles); err != nil {
		transition(ctx, port, job, err, clock)
		return
	}

	invoke, err := codec.Decode(job)
	if err != nil {
		transition(ctx, port, job, err, clock)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(job.Timeout)*time.Second)
	defer cancel()

	type result struct {
		err error
	}
	done := make(chan result, 1)
	go func() {
		_, err := invoke()
		done <- result{err}
	}()

	select {
	case r := <-done:
		transition(ctx, port, job, r.err, clock)
	case <-runCtx.Done():
		// The invoking goroutine is abandoned here: Go has no primitive to
		// force-kill a running goroutine, so this is a best-effort hard
		// bound at the scheduler level rather than a true preemption (see
		// DESIGN.md's Open Question resolution).
		transition(ctx, port, job, ErrJobTimeout, clock)
	}
}

// transition applies spec.md §4.6 step 4/5's success/failure branches.
func transition(ctx context.Context, port storage.Port, job *models.Job, cause error, clock clockwork.Clock) {
	if cause == nil {
		markCompleted(ctx, port, job)
		metrics.Increment(fmt.Sprintf("execution.%s.success", job.Name))
		logf("%s completed attempt=%d/%d", job.UUID, job.RetryCount+1, job.MaxRetries)
		return
	}

	outcome, nextRetryCount := retry.Decide(job, cause)
	switch outcome {
	case retry.OutcomeRetry:
		markRetry(ctx, port, job, nextRetryCount)
		metrics.Increment(fmt.Sprintf("execution.%s.retry", job.Name))
		logf("%s pending attempt=%d/%d cause=%s", job.UUID, nextRetryCount, job.MaxRetries, cause)
		// spec.md §4.6 step 6: sleep retry_delay seconds before returning to
		// the loop. Guarded on >0 so a job dispatched with no delay configured
		// never blocks the worker on a zero-length sleep.
		if job.RetryDelay > 0 {
			clock.Sleep(time.Duration(job.RetryDelay) * time.Second)
		}
	case retry.OutcomeTerminal:
		markFailed(ctx, port, job, nextRetryCount, cause)
		metrics.Increment(fmt.Sprintf("execution.%s.failed", job.Name))
		logf("%s failed attempt=%d/%d cause=%s", job.UUID, job.RetryCount+1, job.MaxRetries, cause)
	}
}

// markCompleted advances job to completed, stamping completed_at and
// updated_at with the dialect's now-function. Built as one raw UPDATE rather
// than through Port.Update, since Update's SET clause only binds placeholder
// values and can't express NowExpr() -- the same reason leaseNext builds its
// own UPDATE by hand.
func markCompleted(ctx context.Context, port storage.Port, job *models.Job) {
	query := fmt.Sprintf(
		"UPDATE %s SET status = ?, pid = ?, completed_at = %s, updated_at = %s WHERE id = ?",
		schema.JobsTable, port.NowExpr(), port.NowExpr(),
	)
	if err := port.Exec(ctx, query, string(models.StatusCompleted), "", job.ID); err != nil {
		// The job already ran to completion; a failed status write leaves
		// the row in "processing", which lease_next (pending rows only)
		// never picks up again, so this is logged, not retried.
		logf("job %s: failed to record completion: %s", job.UUID, err)
	}
}

func markRetry(ctx context.Context, port storage.Port, job *models.Job, nextRetryCount int) {
	query := fmt.Sprintf(
		"UPDATE %s SET status = ?, retry_count = ?, pid = ?, updated_at = %s WHERE id = ?",
		schema.JobsTable, port.NowExpr(),
	)
	if err := port.Exec(ctx, query, string(models.StatusPending), nextRetryCount, "", job.ID); err != nil {
		logf("job %s: failed to record retry: %s", job.UUID, err)
	}
}

// markFailed writes the terminal status and its failed_jobs forensic row in
// a single transaction, so a crash between the two never leaves a
// status='failed' row with no corresponding failed_jobs record (spec.md §8
// invariant 6). Both statements are built directly against the Tx, since
// storage.Tx only exposes Queryer plus Commit/Rollback, not the Port's
// convenience Update/Insert helpers.
func markFailed(ctx context.Context, port storage.Port, job *models.Job, retryCount int, cause error) {
	_ = retryCount // retry_count is intentionally left as-is at terminal failure; see retry.Decide.

	tx, err := port.Begin(ctx)
	if err != nil {
		logf("job %s: failed to open failure transaction: %s", job.UUID, err)
		return
	}

	statusQuery := fmt.Sprintf(
		"UPDATE %s SET status = ?, completed_at = %s, updated_at = %s WHERE id = ?",
		schema.JobsTable, port.NowExpr(), port.NowExpr(),
	)
	if _, err := tx.ExecContext(ctx, statusQuery, string(models.StatusFailed), job.ID); err != nil {
		tx.Rollback()
		logf("job %s: failed to record terminal failure: %s", job.UUID, err)
		return
	}

	insertQuery := fmt.Sprintf(
		"INSERT INTO %s (uuid, job_id, exception, payload) VALUES (?, ?, ?, ?)",
		schema.FailedJobsTable,
	)
	if _, err := tx.ExecContext(ctx, insertQuery, job.UUID.String(), job.ID, cause.Error(), string(job.Params)); err != nil {
		tx.Rollback()
		logf("job %s: failed to record failed_jobs row: %s", job.UUID, err)
		return
	}

	if err := tx.Commit(); err != nil {
		logf("job %s: failed to commit failure transaction: %s", job.UUID, err)
	}
}
