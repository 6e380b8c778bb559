package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shyp/jobqueue/config"
)

func TestGetIntOrDefaultFallsBackWhenUnset(t *testing.T) {
	t.Setenv("JOBQUEUE_TEST_UNSET_INT", "")
	assert.Equal(t, 42, config.GetIntOrDefault("JOBQUEUE_TEST_UNSET_INT", 42))
}

func TestGetIntOrDefaultParsesSetValue(t *testing.T) {
	t.Setenv("JOBQUEUE_TEST_SET_INT", "7")
	assert.Equal(t, 7, config.GetIntOrDefault("JOBQUEUE_TEST_SET_INT", 42))
}

func TestGetStringOrDefault(t *testing.T) {
	t.Setenv("JOBQUEUE_TEST_STR", "")
	assert.Equal(t, "fallback", config.GetStringOrDefault("JOBQUEUE_TEST_STR", "fallback"))

	t.Setenv("JOBQUEUE_TEST_STR", "set")
	assert.Equal(t, "set", config.GetStringOrDefault("JOBQUEUE_TEST_STR", "fallback"))
}

func TestParseWorkerFlagsAppliesDefaultsForZeroFields(t *testing.T) {
	opts, err := config.ParseWorkerFlags(`{"driver_kind":"sqlite"}`, `{}`)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", opts.Driver.DriverKind)
	assert.Equal(t, int64(1_000_000), opts.Worker.ProcessCheckIntervalMicros)
	assert.Equal(t, int64(3600), opts.Worker.WorkerTimeoutSeconds)
	assert.Equal(t, 1, opts.Worker.MaxWorkers)
	assert.NotEmpty(t, opts.Worker.LockDir)
}

func TestParseWorkerFlagsPreservesExplicitValues(t *testing.T) {
	opts, err := config.ParseWorkerFlags(
		`{"driver_kind":"postgres"}`,
		`{"process_check_interval":500000,"worker_timeout":120,"max_workers":4,"lock_dir":"/tmp/x"}`,
	)
	require.NoError(t, err)

	assert.Equal(t, int64(500000), opts.Worker.ProcessCheckIntervalMicros)
	assert.Equal(t, int64(120), opts.Worker.WorkerTimeoutSeconds)
	assert.Equal(t, 4, opts.Worker.MaxWorkers)
	assert.Equal(t, "/tmp/x", opts.Worker.LockDir)
}

func TestParseWorkerFlagsRejectsMalformedJSON(t *testing.T) {
	_, err := config.ParseWorkerFlags(`not json`, `{}`)
	assert.Error(t, err)
}

func TestWorkerOptionsDurationConversions(t *testing.T) {
	opts, err := config.ParseWorkerFlags(
		`{}`,
		`{"process_check_interval":250000,"worker_timeout":10,"max_workers":1,"lock_dir":"/tmp"}`,
	)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, opts.ProcessCheckInterval())
	assert.Equal(t, 10*time.Second, opts.WorkerTimeout())
}
