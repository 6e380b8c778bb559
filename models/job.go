// Package models defines the durable row types persisted by the job queue.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallableType selects which decoding strategy the Callable Codec uses to
// turn a Job's stored bytes back into something invokable.
type CallableType string

const (
	CallableFunction     = CallableType("function")
	CallableClassMethod  = CallableType("class-method")
	CallableClosure      = CallableType("closure")
)

func (c CallableType) Value() (driver.Value, error) {
	return string(c), nil
}

func (c *CallableType) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	*c = CallableType(s)
	return nil
}

// Status is the job's position in the lifecycle state machine described in
// spec.md §3.
type Status string

const (
	StatusPending    = Status("pending")
	StatusProcessing = Status("processing")
	StatusCompleted  = Status("completed")
	StatusFailed     = Status("failed")
)

func (s Status) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *Status) Scan(src interface{}) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	*s = Status(v)
	return nil
}

// Priority governs dispatch ordering. Smaller rank leases first.
type Priority string

const (
	PriorityUrgent = Priority("urgent")
	PriorityHigh   = Priority("high")
	PriorityNormal = Priority("normal")
	PriorityLow    = Priority("low")
)

func (p Priority) Value() (driver.Value, error) {
	return string(p), nil
}

func (p *Priority) Scan(src interface{}) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	*p = Priority(v)
	return nil
}

// Rank returns the priority's position in the total order urgent < high <
// normal < low. Smaller rank is dequeued first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether p is one of the four priorities spec.md defines.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func scanString(src interface{}) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("models: unsupported scan source %#v", src)
	}
}

// Job is the durable record of one unit of deferred work, per spec.md §3.
type Job struct {
	ID              int64
	UUID            uuid.UUID
	Name            string
	CallableType    CallableType
	Callable        []byte
	Namespace       string
	ObjectInstance  []byte
	PathFiles       string
	Params          json.RawMessage
	Status          Status
	Priority        Priority
	Pid             string
	Timeout         int
	RetryCount      int
	MaxRetries      int
	RetryDelay      int
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NextAttempt returns the retry_count that would result from one more
// failure, and whether that failure is still within budget (pure function,
// per the Design Notes' "retry policy as plain component").
func (j *Job) NextAttempt() (next int, retryable bool) {
	next = j.RetryCount + 1
	return next, next < j.MaxRetries
}

// FailedJob is the forensic record written on terminal failure, per
// spec.md §3.
type FailedJob struct {
	ID        int64
	UUID      uuid.UUID
	JobID     int64
	Exception string
	Payload   string
	FailedAt  time.Time
}
