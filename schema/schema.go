// Package schema is the Schema Provisioner (spec.md §4.2): on first use it
// ensures the jobs and failed_jobs tables exist, with their indices and the
// failed_jobs -> jobs foreign key, idempotently.
//
// This replaces rickover's baked-in assumption of a pre-migrated database
// (rickover ships no migrations at all; its tables are assumed to already
// exist) with the auto-provisioning spec.md requires, using the same
// TableExists/CreateTable primitives the Storage Port already exposes.
package schema

import (
	"context"
	"fmt"

	"github.com/Shyp/jobqueue/storage"
)

const JobsTable = "jobs"
const FailedJobsTable = "failed_jobs"

func jobsColumns() []storage.ColumnDef {
	return []storage.ColumnDef{
		{Name: "id", Type: storage.TypeBigInt, AutoIncrement: true},
		{Name: "uuid", Type: storage.TypeVarChar, Size: 36, Nullable: false},
		{Name: "name", Type: storage.TypeVarChar, Size: 255, Nullable: false},
		{Name: "callable_type", Type: storage.TypeVarChar, Size: 32, Nullable: false},
		{Name: "callable", Type: storage.TypeLongText, Nullable: false},
		{Name: "namespace", Type: storage.TypeVarChar, Size: 255, Nullable: true},
		{Name: "object_instance", Type: storage.TypeLongText, Nullable: true},
		{Name: "path_files", Type: storage.TypeVarChar, Size: 1024, Nullable: true},
		{Name: "params", Type: storage.TypeLongText, Nullable: false},
		{Name: "status", Type: storage.TypeVarChar, Size: 16, Nullable: false, Default: "'pending'"},
		{Name: "priority", Type: storage.TypeVarChar, Size: 16, Nullable: false, Default: "'normal'"},
		{Name: "pid", Type: storage.TypeVarChar, Size: 255, Nullable: true},
		{Name: "timeout", Type: storage.TypeInt, Nullable: false, Default: "14400"},
		{Name: "retry_count", Type: storage.TypeInt, Nullable: false, Default: "0"},
		{Name: "max_retries", Type: storage.TypeInt, Nullable: false, Default: "3"},
		{Name: "retry_delay", Type: storage.TypeInt, Nullable: false, Default: "5"},
		{Name: "started_at", Type: storage.TypeTimestamp, Nullable: true},
		{Name: "completed_at", Type: storage.TypeTimestamp, Nullable: true},
		{Name: "created_at", Type: storage.TypeTimestamp, Nullable: false, Default: storage.DefaultCurrentTimestamp},
		{Name: "updated_at", Type: storage.TypeTimestamp, Nullable: false, Default: storage.DefaultCurrentTimestamp},
	}
}

func failedJobsColumns() []storage.ColumnDef {
	return []storage.ColumnDef{
		{Name: "id", Type: storage.TypeBigInt, AutoIncrement: true},
		{Name: "uuid", Type: storage.TypeVarChar, Size: 36, Nullable: false},
		{Name: "job_id", Type: storage.TypeBigInt, Nullable: false},
		{Name: "exception", Type: storage.TypeLongText, Nullable: false},
		{Name: "payload", Type: storage.TypeLongText, Nullable: false},
		{Name: "failed_at", Type: storage.TypeTimestamp, Nullable: false, Default: storage.DefaultCurrentTimestamp},
	}
}

// Ensure creates the jobs and failed_jobs tables (with indices and the
// failed_jobs.job_id foreign key) if they don't already exist. Repeated calls
// are idempotent: a table that TableExists reports is skipped. The DDL has no
// IF NOT EXISTS guard, so when two callers both pass the TableExists check
// before either creates the table, the later CREATE fails and Ensure returns
// that error.
func Ensure(ctx context.Context, port storage.Port) error {
	exists, err := port.TableExists(ctx, JobsTable)
	if err != nil {
		return err
	}
	if !exists {
		if err := port.CreateTable(ctx, JobsTable, jobsColumns()); err != nil {
			return err
		}
		if err := createJobsIndices(ctx, port); err != nil {
			return err
		}
	}

	exists, err = port.TableExists(ctx, FailedJobsTable)
	if err != nil {
		return err
	}
	if !exists {
		if err := port.CreateTable(ctx, FailedJobsTable, failedJobsColumns()); err != nil {
			return err
		}
		if err := createFailedJobsIndices(ctx, port); err != nil {
			return err
		}
	}
	return nil
}

func createJobsIndices(ctx context.Context, port storage.Port) error {
	statements := []string{
		fmt.Sprintf("CREATE UNIQUE INDEX idx_jobs_uuid ON %s (uuid)", port.QuoteIdentifier(JobsTable)),
		fmt.Sprintf("CREATE INDEX idx_jobs_status_priority ON %s (status, priority)", port.QuoteIdentifier(JobsTable)),
		fmt.Sprintf("CREATE INDEX idx_jobs_pid ON %s (pid)", port.QuoteIdentifier(JobsTable)),
	}
	for _, stmt := range statements {
		if err := port.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func createFailedJobsIndices(ctx context.Context, port storage.Port) error {
	statements := []string{
		fmt.Sprintf("CREATE INDEX idx_failed_jobs_job_id ON %s (job_id)", port.QuoteIdentifier(FailedJobsTable)),
	}
	if port.Dialect() != storage.DialectSQLite {
		statements = append(statements, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT fk_failed_jobs_job_id FOREIGN KEY (job_id) REFERENCES %s(id) ON DELETE CASCADE",
			port.QuoteIdentifier(FailedJobsTable), port.QuoteIdentifier(JobsTable),
		))
	}
	for _, stmt := range statements {
		if err := port.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
