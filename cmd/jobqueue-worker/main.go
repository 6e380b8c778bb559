// Run a single jobqueue worker: connect to the configured storage backend,
// acquire the supervisor lock, and drive the Execution Loop until its
// worker_timeout elapses or it's signalled to stop.
//
// This is the spawned analogue of rickover's commands/dequeuer, adapted to
// in-process callable execution instead of an HTTP downstream callback.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	metrics "github.com/Shyp/go-simple-metrics"

	"github.com/Shyp/jobqueue/config"
	"github.com/Shyp/jobqueue/execution"
	"github.com/Shyp/jobqueue/schema"
	"github.com/Shyp/jobqueue/storage"
	"github.com/Shyp/jobqueue/storage/mssql"
	"github.com/Shyp/jobqueue/storage/mysql"
	"github.com/Shyp/jobqueue/storage/postgres"
	"github.com/Shyp/jobqueue/storage/sqlite"
	"github.com/Shyp/jobqueue/supervisor"
)

func checkError(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func portForDriver(kind string) (storage.Port, error) {
	switch kind {
	case string(storage.DialectPostgres):
		return postgres.New(), nil
	case string(storage.DialectMySQL):
		return mysql.New(), nil
	case string(storage.DialectSQLite):
		return sqlite.New(), nil
	case string(storage.DialectMSSQL):
		return mssql.New(), nil
	default:
		return nil, fmt.Errorf("jobqueue-worker: unknown driver_kind %q", kind)
	}
}

func main() {
	driverConfigFlag := flag.String("driver-config", "", "JSON-encoded driver config")
	configFlag := flag.String("config", "", "JSON-encoded worker config")
	flag.Parse()

	opts, err := config.ParseWorkerFlags(*driverConfigFlag, *configFlag)
	if err != nil {
		log.Printf("jobqueue-worker: %s", err)
		os.Exit(1)
	}

	port, err := portForDriver(opts.Driver.DriverKind)
	if err != nil {
		log.Printf("jobqueue-worker: %s", err)
		os.Exit(1)
	}

	dsn := opts.Driver.Connection["dsn"]
	maxConns := config.GetIntOrDefault("JOBQUEUE_WORKER_POOL_SIZE", 5)

	ctx := context.Background()
	if err := port.Connect(ctx, dsn, maxConns); err != nil {
		log.Printf("jobqueue-worker: storage unreachable: %s", err)
		os.Exit(1)
	}
	defer port.Disconnect()

	if err := schema.Ensure(ctx, port); err != nil {
		log.Printf("jobqueue-worker: schema provisioning failed: %s", err)
		os.Exit(1)
	}

	release, err := supervisor.AcquireLock(opts.Worker.LockDir)
	if err != nil {
		log.Printf("jobqueue-worker: %s", err)
		os.Exit(1)
	}

	metrics.Namespace = "jobqueue.worker"
	metrics.Start("worker")

	loop := execution.NewLoop(port, opts.ProcessCheckInterval(), opts.WorkerTimeout())
	loop.RunUntilSignal(release)

	fmt.Println("worker shut down cleanly.")
}
