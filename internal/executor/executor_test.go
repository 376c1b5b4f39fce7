package executor

import (
	"context"
	"testing"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/internal/registry"
	"github.com/gwicho38/lsh-sub006/internal/storage"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	backend, err := storage.NewFileStore(t.TempDir() + "/state.json")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	reg, err := registry.New(context.Background(), backend, registry.Options{})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func TestSupervisor_ExecuteSuccess(t *testing.T) {
	reg := newTestRegistry(t)
	sup := New(reg)

	spec := &jobs.JobSpec{ID: "job-1", Command: "echo hello", Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone}}
	rec, err := sup.Execute(context.Background(), spec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.Status != jobs.ExecCompleted {
		t.Fatalf("got status %v, want completed", rec.Status)
	}
	if rec.ExitCode == nil || *rec.ExitCode != 0 {
		t.Fatalf("got exit code %v, want 0", rec.ExitCode)
	}
	if rec.Stdout != "hello\n" {
		t.Fatalf("got stdout %q", rec.Stdout)
	}
}

func TestSupervisor_ExecuteNonZeroExit(t *testing.T) {
	reg := newTestRegistry(t)
	sup := New(reg)

	spec := &jobs.JobSpec{ID: "job-1", Command: "exit 3", Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone}}
	rec, err := sup.Execute(context.Background(), spec)
	if err == nil {
		t.Fatal("expected an error for a nonzero exit")
	}
	if rec.Status != jobs.ExecFailed {
		t.Fatalf("got status %v, want failed", rec.Status)
	}
	if rec.ExitCode == nil || *rec.ExitCode != 3 {
		t.Fatalf("got exit code %v, want 3", rec.ExitCode)
	}
}

func TestSupervisor_ExecuteTimeout(t *testing.T) {
	reg := newTestRegistry(t)
	sup := New(reg)

	spec := &jobs.JobSpec{
		ID:        "job-1",
		Command:   "sleep 5",
		TimeoutMS: 100,
		Schedule:  jobs.Schedule{Kind: jobs.ScheduleKindNone},
	}
	start := time.Now()
	rec, err := sup.Execute(context.Background(), spec)
	if err == nil {
		t.Fatal("expected an error for a timed out execution")
	}
	if rec.Status != jobs.ExecTimeout {
		t.Fatalf("got status %v, want timeout", rec.Status)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("execution took %s, expected prompt termination after timeout", elapsed)
	}
}

func TestSupervisor_EnvOverlay(t *testing.T) {
	reg := newTestRegistry(t)
	sup := New(reg)

	spec := &jobs.JobSpec{
		ID:      "job-1",
		Command: "echo $LSH_TEST_VAR",
		Env:     map[string]string{"LSH_TEST_VAR": "overlaid"},
		Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone},
	}
	rec, err := sup.Execute(context.Background(), spec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.Stdout != "overlaid\n" {
		t.Fatalf("got stdout %q, want overlaid var value", rec.Stdout)
	}
}

func TestSupervisor_ExecuteWithRetry(t *testing.T) {
	reg := newTestRegistry(t)
	sup := New(reg)

	spec := &jobs.JobSpec{
		ID:         "job-1",
		Command:    "exit 1",
		MaxRetries: 2,
		Schedule:   jobs.Schedule{Kind: jobs.ScheduleKindNone},
	}
	rec, err := sup.ExecuteWithRetry(context.Background(), spec)
	if err == nil {
		t.Fatal("expected final error after exhausting retries")
	}
	if rec.RetryCount != 2 {
		t.Fatalf("got retry count %d, want 2", rec.RetryCount)
	}
}

func TestComputeBackoff(t *testing.T) {
	if got := computeBackoff(1); got != baseBackoff {
		t.Fatalf("attempt 1: got %s, want %s", got, baseBackoff)
	}
	if got := computeBackoff(10); got != maxBackoff {
		t.Fatalf("attempt 10: got %s, want cap %s", got, maxBackoff)
	}
}
