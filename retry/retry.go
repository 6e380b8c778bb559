// Package retry is the Execution Loop's retry policy, pulled out as a pure
// function of (retry_count, max_retries, error kind) rather than mixed into
// the dequeue/execute loop — the Design Notes call this out explicitly
// ("Trait composition (retry + execution mixed into the processor) -> plain
// components"). It generalizes the branching rickover scatters across
// services.HandleStatusCallback/handleFailedCallback into one decision
// function.
package retry

import (
	"errors"

	"github.com/Shyp/jobqueue/codec"
	"github.com/Shyp/jobqueue/models"
)

// Outcome is what the Execution Loop should do after an attempt failed.
type Outcome int

const (
	// OutcomeRetry means the job goes back to pending with retry_count
	// incremented and pid cleared.
	OutcomeRetry Outcome = iota
	// OutcomeTerminal means the job moves to failed and a FailedJob row is
	// written.
	OutcomeTerminal
)

// Decide implements spec.md §7's classification table: TamperedClosure is
// always terminal; everything else is retryable while budget remains.
//
// nextRetryCount is the retry_count the job row should be written with.
// For a retry, that's retry_count+1 (spec.md §4.6 step "retry_count=next").
// For a terminal transition, spec.md §4.6 only says "update to
// status='failed'" -- it does not mention writing retry_count at all, so
// the row keeps its current value. That's the Open Question in spec.md §9:
// the stored retry_count at terminal failure may end up strictly less than
// max_retries, and this must not be silently rounded up to max_retries.
func Decide(job *models.Job, cause error) (outcome Outcome, nextRetryCount int) {
	next := job.RetryCount + 1

	if errors.Is(cause, codec.ErrTamperedClosure) {
		return OutcomeTerminal, job.RetryCount
	}

	if next < job.MaxRetries {
		return OutcomeRetry, next
	}
	return OutcomeTerminal, job.RetryCount
}
