// Package config loads the Dispatcher/worker configuration spec.md §6
// requires, in rickover's style of small os.Getenv-backed helpers
// (config/config.go's GetInt/GetURLOrBail) rather than a config framework.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Shyp/jobqueue/supervisor"
)

// GetInt loads the environment variable varName and parses it as an int,
// the same shape as rickover's config.GetInt.
func GetInt(varName string) (int, error) {
	return strconv.Atoi(os.Getenv(varName))
}

// GetIntOrDefault is GetInt with a fallback for an unset/invalid variable.
func GetIntOrDefault(varName string, fallback int) int {
	n, err := GetInt(varName)
	if err != nil {
		return fallback
	}
	return n
}

// GetStringOrDefault returns the environment variable varName, or fallback
// if it is unset.
func GetStringOrDefault(varName, fallback string) string {
	if v := os.Getenv(varName); v != "" {
		return v
	}
	return fallback
}

// GetURLOrBail loads urlEnvVar and fatals with a clear message if it's
// unset, mirroring rickover's config.GetURLOrBail for the connection DSN.
func GetURLOrBail(urlEnvVar string) string {
	v := os.Getenv(urlEnvVar)
	if v == "" {
		fmt.Fprintf(os.Stderr, "config: no connection string configured; set %s\n", urlEnvVar)
		os.Exit(1)
	}
	return v
}

// WorkerOptions is the decoded shape of the worker's two command-line
// flags, per spec.md §6.
type WorkerOptions struct {
	Driver supervisor.DriverConfig
	Worker supervisor.WorkerConfig
}

// ParseWorkerFlags decodes the --driver-config and --config JSON blobs the
// Worker Supervisor passes to a spawned cmd/jobqueue-worker process.
func ParseWorkerFlags(driverConfigJSON, configJSON string) (*WorkerOptions, error) {
	var driver supervisor.DriverConfig
	if err := json.Unmarshal([]byte(driverConfigJSON), &driver); err != nil {
		return nil, fmt.Errorf("config: decoding --driver-config: %w", err)
	}
	var worker supervisor.WorkerConfig
	if err := json.Unmarshal([]byte(configJSON), &worker); err != nil {
		return nil, fmt.Errorf("config: decoding --config: %w", err)
	}
	if worker.ProcessCheckIntervalMicros == 0 {
		worker.ProcessCheckIntervalMicros = supervisor.DefaultWorkerConfig().ProcessCheckIntervalMicros
	}
	if worker.WorkerTimeoutSeconds == 0 {
		worker.WorkerTimeoutSeconds = supervisor.DefaultWorkerConfig().WorkerTimeoutSeconds
	}
	if worker.MaxWorkers == 0 {
		worker.MaxWorkers = supervisor.DefaultWorkerConfig().MaxWorkers
	}
	if worker.LockDir == "" {
		worker.LockDir = supervisor.DefaultWorkerConfig().LockDir
	}
	return &WorkerOptions{Driver: driver, Worker: worker}, nil
}

// ProcessCheckInterval converts the microsecond field to a time.Duration.
func (o *WorkerOptions) ProcessCheckInterval() time.Duration {
	return time.Duration(o.Worker.ProcessCheckIntervalMicros) * time.Microsecond
}

// WorkerTimeout converts the seconds field to a time.Duration.
func (o *WorkerOptions) WorkerTimeout() time.Duration {
	return time.Duration(o.Worker.WorkerTimeoutSeconds) * time.Second
}
