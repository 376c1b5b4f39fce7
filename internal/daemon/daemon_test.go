package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/jobs"
)

func TestDaemon_StartStop(t *testing.T) {
	d, err := New(Config{HomeDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestDaemon_ScheduledJobRunsViaPump(t *testing.T) {
	d, err := New(Config{HomeDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	spec := &jobs.JobSpec{
		ID:      "due-job",
		Name:    "echo",
		Command: "true",
		Schedule: jobs.Schedule{
			Kind:       jobs.ScheduleKindInterval,
			IntervalMS: 50,
		},
	}
	if _, err := d.Ops().CreateJob(context.Background(), spec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hist, err := d.Ops().GetJobHistory(context.Background(), "due-job", 10)
		if err == nil && len(hist) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scheduled job never produced an execution record")
}
