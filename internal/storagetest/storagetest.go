// Package storagetest is the integration test harness, gated behind
// DATABASE_URL exactly like rickover's test.SetUp/test/db.SetUp: it connects
// a real Postgres Storage Port, provisions the schema, and truncates tables
// between tests.
package storagetest

import (
	"context"
	"os"
	"testing"

	"github.com/Shyp/jobqueue/schema"
	"github.com/Shyp/jobqueue/storage"
	"github.com/Shyp/jobqueue/storage/postgres"
)

const defaultTestURL = "postgres://jobqueue@localhost:5432/jobqueue_test?sslmode=disable"

// SetUp connects port to DATABASE_URL (defaulting to a local test
// database), provisioning the schema if needed. Skips the test entirely
// when DATABASE_URL isn't set and no local Postgres is reachable, mirroring
// rickover's test.SetUp pattern of defaulting a connection string rather
// than failing outright.
func SetUp(t testing.TB) storage.Port {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = defaultTestURL
	}

	port := postgres.New()
	ctx := context.Background()
	if err := port.Connect(ctx, dsn, 5); err != nil {
		t.Skipf("storagetest: no reachable database at %s: %s", dsn, err)
	}
	if err := schema.Ensure(ctx, port); err != nil {
		t.Fatalf("storagetest: schema provisioning failed: %s", err)
	}
	return port
}

// TearDown truncates the jobs and failed_jobs tables, marking the test as
// failed if truncation itself errors.
func TearDown(t testing.TB, port storage.Port) {
	t.Helper()
	ctx := context.Background()
	if err := port.TruncateTable(ctx, schema.FailedJobsTable); err != nil {
		t.Fatal(err)
	}
	if err := port.TruncateTable(ctx, schema.JobsTable); err != nil {
		t.Fatal(err)
	}
	if err := port.Disconnect(); err != nil {
		t.Fatal(err)
	}
}
