// Package dispatch is the Dispatcher API (spec.md §4.4): a fluent builder
// producers use to enqueue a callable for deferred execution, or run it
// synchronously.
//
// The builder accumulates into an immutable models.Job snapshot at Dispatch
// time rather than sharing mutable state, the same shape rickover's
// server.CreateJobRequest assembles into a models.Job before a single
// INSERT ... RETURNING (models/jobs/jobs.go Create).
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Shyp/jobqueue/codec"
	"github.com/Shyp/jobqueue/models"
	"github.com/Shyp/jobqueue/storage"
	"github.com/Shyp/jobqueue/storageerr"
)

// Error kinds from spec.md §7 that originate in the Dispatcher.
var (
	ErrInvalidArgument = errors.New("dispatch: invalid argument")
	ErrInvalidCallable = errors.New("dispatch: callable does not classify")
	ErrDispatchFailed  = errors.New("dispatch: storage operation failed")
)

const (
	defaultPriority   = models.PriorityNormal
	defaultMaxRetries = 3
	defaultTimeout    = 14400
	defaultRetryDelay = 5
)

// Supervisor is the subset of supervisor.Supervisor the Dispatcher needs to
// kick a worker awake after a successful dispatch. Declared narrowly here so
// tests can fake it without importing the real process-spawning supervisor.
type Supervisor interface {
	EnsureWorkerRunning(ctx context.Context) error
}

// Dispatcher is the Dispatcher API's entry point: one per Storage Port
// connection, reused across many Job builders.
type Dispatcher struct {
	port       storage.Port
	supervisor Supervisor
}

// New builds a Dispatcher bound to port. sup may be nil, in which case
// Dispatch skips the ensure-worker-running step (useful for tests that only
// exercise persistence).
func New(port storage.Port, sup Supervisor) *Dispatcher {
	return &Dispatcher{port: port, supervisor: sup}
}

// Builder is the fluent accumulator returned by Dispatcher.Job. Each setter
// returns the same *Builder so calls chain; Dispatch/DispatchNow read off an
// immutable snapshot rather than mutating shared state afterward.
type Builder struct {
	d *Dispatcher

	name            string
	callableType    models.CallableType
	callable        []byte
	namespace       string
	objectInstance  []byte
	params          []byte
	priority        models.Priority
	maxRetries      int
	timeout         int
	retryDelay      int
	pathFiles       string
	includePathFile bool

	buildErr error
}

// Job starts a new builder for a function-style callable registered under
// name. Params is marshaled to JSON immediately so later setter calls can't
// retroactively change what gets dispatched.
func (d *Dispatcher) Job(name string, params any) *Builder {
	b := &Builder{
		d:            d,
		name:         name,
		callableType: models.CallableFunction,
		callable:     codec.EncodeFunction(name),
		priority:     defaultPriority,
		maxRetries:   defaultMaxRetries,
		timeout:      defaultTimeout,
		retryDelay:   defaultRetryDelay,
	}
	paramBytes, err := marshalParams(params)
	if err != nil {
		b.buildErr = fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}
	b.params = paramBytes
	return b
}

// Method starts a builder for a class-method callable: namespace#method,
// with an optional receiver for instance methods (pass nil for static).
func (d *Dispatcher) Method(namespace, method string, recv any, params any) *Builder {
	b := &Builder{
		d:            d,
		name:         namespace + "#" + method,
		callableType: models.CallableClassMethod,
		callable:     codec.EncodeMethod(namespace, method),
		namespace:    namespace,
		priority:     defaultPriority,
		maxRetries:   defaultMaxRetries,
		timeout:      defaultTimeout,
		retryDelay:   defaultRetryDelay,
	}
	if recv != nil {
		instance, err := codec.EncodeReceiver(recv)
		if err != nil {
			b.buildErr = fmt.Errorf("%w: %s", ErrInvalidArgument, err)
		}
		b.objectInstance = instance
	}
	paramBytes, err := marshalParams(params)
	if err != nil {
		b.buildErr = fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}
	b.params = paramBytes
	return b
}

// Closure starts a builder for a registered closure target, identified by
// key, with the HMAC-tagged envelope the Callable Codec produces.
func (d *Dispatcher) Closure(name, key string, params any) *Builder {
	b := &Builder{
		d:            d,
		name:         name,
		callableType: models.CallableClosure,
		priority:     defaultPriority,
		maxRetries:   defaultMaxRetries,
		timeout:      defaultTimeout,
		retryDelay:   defaultRetryDelay,
	}
	callable, paramBytes, err := codec.EncodeClosure(key, params)
	if err != nil {
		b.buildErr = fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}
	b.callable = callable
	b.params = paramBytes
	return b
}

func marshalParams(params any) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(params)
}

// SetName overrides the default name (the callable's textual class, per
// spec.md §4.4 -- for this Go implementation, the registry key or
// namespace#method string already computed in Job/Method/Closure).
func (b *Builder) SetName(name string) *Builder {
	b.name = name
	return b
}

func (b *Builder) SetPriority(p models.Priority) *Builder {
	b.priority = p
	return b
}

func (b *Builder) SetMaxRetries(n int) *Builder {
	b.maxRetries = n
	return b
}

func (b *Builder) SetTimeout(seconds int) *Builder {
	b.timeout = seconds
	return b
}

func (b *Builder) SetRetryDelay(seconds int) *Builder {
	b.retryDelay = seconds
	return b
}

// SetIncludePathFile marks that path must exist at dispatch time. The
// worker checks once that it still exists before decoding the callable; it
// does not load the file's contents.
func (b *Builder) SetIncludePathFile(path string) *Builder {
	b.pathFiles = path
	b.includePathFile = true
	return b
}

func (b *Builder) validate() error {
	if b.buildErr != nil {
		return b.buildErr
	}
	if !b.priority.Valid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidArgument, b.priority)
	}
	if b.includePathFile {
		if _, err := os.Stat(b.pathFiles); err != nil {
			return fmt.Errorf("%w: preload path %q: %s", ErrInvalidArgument, b.pathFiles, err)
		}
	}
	if b.callableType == "" || b.callable == nil {
		return ErrInvalidCallable
	}
	return nil
}

func (b *Builder) snapshot() models.Job {
	return models.Job{
		UUID:           uuid.New(),
		Name:           b.name,
		CallableType:   b.callableType,
		Callable:       b.callable,
		Namespace:      b.namespace,
		ObjectInstance: b.objectInstance,
		PathFiles:      b.pathFiles,
		Params:         b.params,
		Status:         models.StatusPending,
		Priority:       b.priority,
		Timeout:        b.timeout,
		RetryCount:     0,
		MaxRetries:     b.maxRetries,
		RetryDelay:     b.retryDelay,
	}
}

// Dispatch persists the job (status=pending, retry_count=0) inside a single
// transaction, commits, kicks the Worker Supervisor awake, and returns the
// generated UUID. Any storage failure rolls back and returns
// ErrDispatchFailed wrapping the underlying *storageerr.Error.
func (b *Builder) Dispatch(ctx context.Context) (uuid.UUID, error) {
	if err := b.validate(); err != nil {
		return uuid.UUID{}, err
	}
	job := b.snapshot()

	tx, err := b.d.port.Begin(ctx)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %s", ErrDispatchFailed, err)
	}

	values := map[string]any{
		"uuid":            job.UUID.String(),
		"name":            job.Name,
		"callable_type":   string(job.CallableType),
		"callable":        string(job.Callable),
		"namespace":       job.Namespace,
		"object_instance": string(job.ObjectInstance),
		"path_files":      job.PathFiles,
		"params":          string(job.Params),
		"status":          string(job.Status),
		"priority":        string(job.Priority),
		"timeout":         job.Timeout,
		"retry_count":     job.RetryCount,
		"max_retries":     job.MaxRetries,
		"retry_delay":     job.RetryDelay,
	}

	if _, err := insertInTx(ctx, tx, values); err != nil {
		tx.Rollback()
		var serr *storageerr.Error
		if errors.As(err, &serr) {
			return uuid.UUID{}, fmt.Errorf("%w: %s", ErrDispatchFailed, serr)
		}
		return uuid.UUID{}, fmt.Errorf("%w: %s", ErrDispatchFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %s", ErrDispatchFailed, err)
	}

	if b.d.supervisor != nil {
		// Best-effort: a supervisor failure here does not unwind the
		// dispatch, the job is already durably pending and the next
		// dispatch (or an already-running worker) will pick it up.
		_ = b.d.supervisor.EnsureWorkerRunning(ctx)
	}

	return job.UUID, nil
}

// DispatchNow skips persistence entirely and executes the callable
// synchronously under the configured timeout, propagating its result or
// error directly to the caller.
func (b *Builder) DispatchNow(ctx context.Context) (any, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	job := b.snapshot()

	invoke, err := codec.Decode(&job)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(job.Timeout)*time.Second)
	defer cancel()

	type result struct {
		val any
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := invoke()
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-runCtx.Done():
		return nil, runCtx.Err()
	}
}

// GetJobStatus returns the current row for uuid, per spec.md §4.4.
func (d *Dispatcher) GetJobStatus(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return getJobByUUID(ctx, d.port, id)
}

// JobStats is the aggregate result of GetJobStats: counts per status plus
// average seconds between created_at and completed_at for completed jobs.
type JobStats struct {
	Pending         int64
	Processing      int64
	Completed       int64
	Failed          int64
	AvgCompleteSecs float64
}

// GetJobStats aggregates counts per status plus the average turnaround time
// for completed jobs, per spec.md §4.4.
func (d *Dispatcher) GetJobStats(ctx context.Context) (*JobStats, error) {
	return getJobStats(ctx, d.port)
}
