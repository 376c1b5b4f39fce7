package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/errkind"
	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/internal/storage"
)

func kindOf(t *testing.T, err error) errkind.Kind {
	t.Helper()
	k, ok := errkind.KindOf(err)
	if !ok {
		t.Fatalf("expected an *errkind.Error, got %v", err)
	}
	return k
}

func newTestRegistry(t *testing.T) (*Registry, storage.Backend) {
	t.Helper()
	path := t.TempDir() + "/registry.json"
	backend, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	r, err := New(context.Background(), backend, Options{MaxHistoryPerJob: 3, MaxHistoryGlobal: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, backend
}

func TestRegistry_CreateAndGetJob(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	spec := &jobs.JobSpec{ID: "job-1", Name: "backup", Command: "echo hi", Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone}}
	if err := r.CreateJob(ctx, spec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := r.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Name != "backup" {
		t.Fatalf("GetJob: got %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("GetJob: CreatedAt not set")
	}

	if err := r.CreateJob(ctx, spec); kindOf(t, err) != errkind.AlreadyExists {
		t.Fatalf("CreateJob duplicate: got %v, want AlreadyExists", err)
	}
}

func TestRegistry_GetJob_NotFound(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.GetJob("nope"); kindOf(t, err) != errkind.NotFound {
		t.Fatalf("GetJob: got %v, want NotFound", err)
	}
}

func TestRegistry_UpdateJob(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	spec := &jobs.JobSpec{ID: "job-1", Command: "echo hi", Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone}}
	if err := r.CreateJob(ctx, spec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	updated, err := r.UpdateJob(ctx, "job-1", func(j *jobs.JobSpec) {
		j.Status = jobs.StatusPaused
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if updated.Status != jobs.StatusPaused {
		t.Fatalf("UpdateJob: got status %v", updated.Status)
	}
}

func TestRegistry_RemoveJob(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	spec := &jobs.JobSpec{ID: "job-1", Command: "echo hi", Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone}}
	_ = r.CreateJob(ctx, spec)

	if err := r.RemoveJob(ctx, "job-1"); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if _, err := r.GetJob("job-1"); kindOf(t, err) != errkind.NotFound {
		t.Fatalf("GetJob after remove: got %v", err)
	}
}

// recordOne drives an execution through the registry's normal
// RecordStart/RecordCompletion lifecycle, as the executor would, rather
// than poking an ExecutionRecord into history directly.
func recordOne(t *testing.T, r *Registry, ctx context.Context, jobID string, status jobs.ExecStatus, execErr error) *jobs.ExecutionRecord {
	t.Helper()
	spec := &jobs.JobSpec{ID: jobID}
	rec := r.RecordStart(spec, "")
	sealed, err := r.RecordCompletion(ctx, rec.ExecutionID, status, nil, "", execErr)
	if err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}
	return sealed
}

func TestRegistry_RecordExecutionAndStats(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status := jobs.ExecCompleted
		var execErr error
		if i == 2 {
			status = jobs.ExecFailed
			execErr = errors.New("boom")
		}
		recordOne(t, r, ctx, "job-1", status, execErr)
	}

	stats, err := r.GetStatistics("job-1")
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.TotalExecutions != 3 {
		t.Fatalf("TotalExecutions: got %d, want 3 (cap per job is 3)", stats.TotalExecutions)
	}
	if stats.Failed == 0 && stats.Completed == 0 {
		t.Fatal("expected some completed or failed executions")
	}
}

func TestRegistry_HistoryEvictsOldestPerJob(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		recordOne(t, r, ctx, "job-1", jobs.ExecCompleted, nil)
	}

	hist, err := r.GetHistory("job-1", 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("GetHistory: got %d records, want 3 (cap)", len(hist))
	}
	// Most recent first.
	if !hist[0].StartTime.After(hist[len(hist)-1].StartTime) {
		t.Fatal("GetHistory: want most-recent-first ordering")
	}
}

func TestRegistry_SubscribePublishesExecutionCompleted(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	ch := r.Subscribe()

	recordOne(t, r, ctx, "job-1", jobs.ExecCompleted, nil)

	// RecordStart and RecordOutput publish their own events first.
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == EventExecutionStarted || ev.Kind == EventOutputRecorded {
				continue
			}
			if ev.Kind != EventExecutionComplete {
				t.Fatalf("got event kind %v, want executionCompleted", ev.Kind)
			}
			if ev.JobID != "job-1" {
				t.Fatalf("got job id %q", ev.JobID)
			}
			return
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestRegistry_LoadsPersistedStateOnRestart(t *testing.T) {
	path := t.TempDir() + "/registry.json"
	backend, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	r1, err := New(ctx, backend, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	spec := &jobs.JobSpec{ID: "job-1", Command: "echo hi", Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone}}
	if err := r1.CreateJob(ctx, spec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	backend2, err := storage.NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	r2, err := New(ctx, backend2, Options{})
	if err != nil {
		t.Fatalf("New after reload: %v", err)
	}
	if _, err := r2.GetJob("job-1"); err != nil {
		t.Fatalf("GetJob after reload: %v", err)
	}
}
