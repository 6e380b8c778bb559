// Package supervisor is the Worker Supervisor (spec.md §4.5): it owns the
// on-disk lock file that marks a single worker process as running, probes
// liveness, and spawns a fresh detached worker process when none is alive.
//
// rickover has no equivalent: its dequeuer pool lives in the same process
// as the producer (server.DefaultServer starts dequeuer.Pools directly). The
// structured process-spawn / lock-file pattern here has no direct analogue
// anywhere in the retrieval pack, so it is built from stdlib os/exec and
// os.OpenFile directly -- see DESIGN.md for why no third-party library
// covers this.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLockContention is raised when the worker cannot acquire its lock file,
// per spec.md §7.
var ErrLockContention = errors.New("supervisor: cannot acquire worker lock")

const lockFileName = "queue_worker.lock"

// DriverConfig is the JSON payload passed to the spawned worker via
// --driver-config, sufficient for it to re-establish a storage connection
// of the same kind the producer used (spec.md §6).
type DriverConfig struct {
	DriverKind string            `json:"driver_kind"`
	Connection map[string]string `json:"connection"`
}

// WorkerConfig is the JSON payload passed via --config (spec.md §6).
type WorkerConfig struct {
	ProcessCheckIntervalMicros int64  `json:"process_check_interval"`
	WorkerTimeoutSeconds       int64  `json:"worker_timeout"`
	MaxWorkers                 int    `json:"max_workers"`
	LockDir                    string `json:"lock_dir"`
}

// DefaultWorkerConfig matches spec.md §6's configuration defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ProcessCheckIntervalMicros: 1_000_000,
		WorkerTimeoutSeconds:       3600,
		MaxWorkers:                 1,
		LockDir:                    os.TempDir(),
	}
}

// Supervisor ensures exactly one worker process is alive for a given
// (driver config, worker config) pair.
type Supervisor struct {
	WorkerBin string
	Driver    DriverConfig
	Config    WorkerConfig

	// probeLive reports whether pid is still alive; overridable in tests.
	probeLive func(pid int) bool
	// spawn launches the detached worker process; overridable in tests.
	spawn func(argv []string) error
}

// New builds a Supervisor that spawns workerBin (the cmd/jobqueue-worker
// binary path) with the given driver/worker configuration.
func New(workerBin string, driver DriverConfig, cfg WorkerConfig) *Supervisor {
	return &Supervisor{
		WorkerBin: workerBin,
		Driver:    driver,
		Config:    cfg,
		probeLive: isProcessAlive,
		spawn:     spawnDetached,
	}
}

func (s *Supervisor) lockPath() string {
	return filepath.Join(s.Config.LockDir, lockFileName)
}

// EnsureWorkerRunning implements spec.md §4.5's ensure_worker_running: if
// the lock file names a live pid, return; if stale, remove it; otherwise
// spawn a new detached worker. The spawn never blocks the caller.
func (s *Supervisor) EnsureWorkerRunning(ctx context.Context) error {
	path := s.lockPath()
	pid, err := readLockPid(path)
	if err == nil {
		if s.probeLive(pid) {
			return nil
		}
		// Stale lock: the process that held it is gone.
		os.Remove(path)
	}

	driverJSON, err := json.Marshal(s.Driver)
	if err != nil {
		return fmt.Errorf("supervisor: encoding driver config: %w", err)
	}
	configJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("supervisor: encoding worker config: %w", err)
	}

	argv := []string{
		s.WorkerBin,
		"--driver-config=" + string(driverJSON),
		"--config=" + string(configJSON),
	}
	return s.spawn(argv)
}

func readLockPid(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("supervisor: malformed lock file %q: %w", path, err)
	}
	return pid, nil
}

// AcquireLock is called inside the worker at startup: it writes the current
// pid to the lock file with mode 0644, per spec.md §4.5.
func AcquireLock(lockDir string) (release func(), err error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLockContention, err)
	}
	path := filepath.Join(lockDir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLockContention, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLockContention, err)
	}

	return func() { os.Remove(path) }, nil
}
