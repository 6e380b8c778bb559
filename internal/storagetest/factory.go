package storagetest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/Shyp/jobqueue/codec"
	"github.com/Shyp/jobqueue/models"
	"github.com/Shyp/jobqueue/schema"
	"github.com/Shyp/jobqueue/storage"
)

// EmptyParams matches rickover test/factory's EmptyData: a reusable empty
// JSON object for callables that ignore their params.
var EmptyParams = json.RawMessage([]byte("{}"))

// NewJob builds a models.Job with sane defaults, the same role rickover's
// factory.SampleJob plays: a baseline callers overwrite the fields they
// care about on.
func NewJob(name string) models.Job {
	return models.Job{
		UUID:         uuid.New(),
		Name:         name,
		CallableType: models.CallableFunction,
		Callable:     codec.EncodeFunction(name),
		Params:       EmptyParams,
		Status:       models.StatusPending,
		Priority:     models.PriorityNormal,
		Timeout:      60,
		MaxRetries:   3,
		RetryDelay:   1,
	}
}

// CreateJob inserts j into the jobs table and returns the row it produced,
// the storagetest analogue of rickover's factory.CreateJob.
func CreateJob(t testing.TB, port storage.Port, j models.Job) *models.Job {
	t.Helper()
	ctx := context.Background()
	values := map[string]any{
		"uuid":            j.UUID.String(),
		"name":            j.Name,
		"callable_type":   string(j.CallableType),
		"callable":        string(j.Callable),
		"namespace":       j.Namespace,
		"object_instance": string(j.ObjectInstance),
		"path_files":      j.PathFiles,
		"params":          string(j.Params),
		"status":          string(j.Status),
		"priority":        string(j.Priority),
		"timeout":         j.Timeout,
		"retry_count":     j.RetryCount,
		"max_retries":     j.MaxRetries,
		"retry_delay":     j.RetryDelay,
	}
	id, err := port.Insert(ctx, schema.JobsTable, values)
	if err != nil {
		t.Fatalf("storagetest: CreateJob: %s", err)
	}
	j.ID = id
	return &j
}
