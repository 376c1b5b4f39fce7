package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/jobs"
)

type fakeNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeNotifier) NotifyJobDue(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, jobID)
}

func (f *fakeNotifier) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ids))
	copy(out, f.ids)
	return out
}

func TestScheduler_IntervalJobFires(t *testing.T) {
	notifier := &fakeNotifier{}
	s := New(notifier, Options{MinCheckInterval: 5 * time.Millisecond, MaxCheckInterval: 50 * time.Millisecond, DueBuffer: time.Millisecond})

	if err := s.AddJob("job-1", 5, jobs.Schedule{Kind: jobs.ScheduleKindInterval, IntervalMS: 10}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(notifier.snapshot()) >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least 2 notifications, got %v", notifier.snapshot())
}

func TestScheduler_OneShotFiresOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	s := New(notifier, Options{MinCheckInterval: 5 * time.Millisecond, MaxCheckInterval: 20 * time.Millisecond, DueBuffer: time.Millisecond})

	if err := s.AddJob("job-1", 5, jobs.Schedule{Kind: jobs.ScheduleKindNone}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	time.Sleep(200 * time.Millisecond)
	got := notifier.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 notification for a one-shot job, got %v", got)
	}
}

func TestScheduler_RemoveJobStopsNotifications(t *testing.T) {
	notifier := &fakeNotifier{}
	s := New(notifier, Options{MinCheckInterval: 5 * time.Millisecond, MaxCheckInterval: 20 * time.Millisecond, DueBuffer: time.Millisecond})

	if err := s.AddJob("job-1", 5, jobs.Schedule{Kind: jobs.ScheduleKindInterval, IntervalMS: 10}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	s.RemoveJob("job-1")

	if s.Len() != 0 {
		t.Fatalf("Len: got %d, want 0 after RemoveJob", s.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := notifier.snapshot(); len(got) != 0 {
		t.Fatalf("expected no notifications after removal, got %v", got)
	}
}

func TestScheduler_AddJobInvalidSchedule(t *testing.T) {
	s := New(&fakeNotifier{}, Options{})
	if err := s.AddJob("job-1", 5, jobs.Schedule{Kind: jobs.ScheduleKindInterval, IntervalMS: -1}); err == nil {
		t.Fatal("expected error for non-positive interval")
	}
	if err := s.AddJob("job-2", 5, jobs.Schedule{Kind: jobs.ScheduleKindCron, Cron: "not a cron"}); err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
}

func TestCronExpr_UnionSemantics(t *testing.T) {
	// "At 09:00 on day-of-month 1 OR on Monday" — both constrained, so
	// union semantics mean either condition alone is enough to match.
	ce, err := parseCron("0 9 1 * 1")
	if err != nil {
		t.Fatalf("parseCron: %v", err)
	}

	// 2024-02-05 is a Monday but not the 1st of the month.
	monday := time.Date(2024, 2, 5, 8, 0, 0, 0, time.UTC)
	next := ce.Next(monday)
	if next.IsZero() {
		t.Fatal("expected a match via the day-of-week branch of the union")
	}
	if next.Weekday() != time.Monday && next.Day() != 1 {
		t.Fatalf("got %v, want either a Monday or the 1st", next)
	}
}

func TestCronExpr_WildcardFieldsMatchEveryDay(t *testing.T) {
	ce, err := parseCron("30 14 * * *")
	if err != nil {
		t.Fatalf("parseCron: %v", err)
	}
	from := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	next := ce.Next(from)
	if next.Hour() != 14 || next.Minute() != 30 {
		t.Fatalf("got %v, want 14:30", next)
	}
}

func TestCronExpr_StepAndRange(t *testing.T) {
	ce, err := parseCron("*/15 0-5 * * *")
	if err != nil {
		t.Fatalf("parseCron: %v", err)
	}
	if len(ce.minutes) != 4 {
		t.Fatalf("minutes: got %v", ce.minutes)
	}
	if len(ce.hours) != 6 {
		t.Fatalf("hours: got %v", ce.hours)
	}
}

func TestCronExpr_Macro(t *testing.T) {
	ce, err := parseCron("@hourly")
	if err != nil {
		t.Fatalf("parseCron: %v", err)
	}
	if ce.String() != "0 * * * *" {
		t.Fatalf("got %q", ce.String())
	}
}
