// Package scheduler implements the due-time engine (spec C3): a min-heap
// of jobs ordered by next activation, adaptive polling that recomputes its
// own wake interval after every sweep, and the cron/interval/one-shot
// schedule grammar jobs declare.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/l3"
)

var logger = l3.Get()

const (
	// DefaultMinCheckInterval bounds how often the loop will wake even if
	// the nearest due time is closer than this, avoiding a busy spin when
	// many jobs are due in quick succession.
	DefaultMinCheckInterval = 100 * time.Millisecond
	// DefaultMaxCheckInterval bounds how long the loop sleeps when no job
	// is due, so a newly-added job from another process (via shared
	// storage) is still picked up within a bounded time.
	DefaultMaxCheckInterval = 60 * time.Second
	// DefaultDueBuffer is added to "now" when sweeping, so a job due a few
	// milliseconds after the wake time still fires on this pass instead of
	// waiting a full extra cycle.
	DefaultDueBuffer = 50 * time.Millisecond
)

// DueNotifier receives notification that a job's schedule has fired.
// internal/registry.Registry satisfies this with its NotifyJobDue method.
type DueNotifier interface {
	NotifyJobDue(jobID string)
}

// Options configures a Scheduler's adaptive-polling bounds.
type Options struct {
	MinCheckInterval time.Duration
	MaxCheckInterval time.Duration
	DueBuffer        time.Duration
}

// Scheduler tracks the next activation time of every registered job and
// notifies a DueNotifier when one comes due. It never executes jobs
// itself — that is the executor's (C4) job — decoupling scheduling from
// execution onto separate goroutine stacks per Design Note §9.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*dueEntry
	heap    dueHeap

	notify DueNotifier

	minCheck time.Duration
	maxCheck time.Duration
	dueBuf   time.Duration

	wake    chan struct{}
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Scheduler that calls notify.NotifyJobDue for every job
// that comes due.
func New(notify DueNotifier, opts Options) *Scheduler {
	if opts.MinCheckInterval <= 0 {
		opts.MinCheckInterval = DefaultMinCheckInterval
	}
	if opts.MaxCheckInterval <= 0 {
		opts.MaxCheckInterval = DefaultMaxCheckInterval
	}
	if opts.DueBuffer <= 0 {
		opts.DueBuffer = DefaultDueBuffer
	}
	return &Scheduler{
		entries:  map[string]*dueEntry{},
		notify:   notify,
		minCheck: opts.MinCheckInterval,
		maxCheck: opts.MaxCheckInterval,
		dueBuf:   opts.DueBuffer,
		wake:     make(chan struct{}, 1),
	}
}

// AddJob registers a job's schedule. If id is already registered, it is
// replaced (equivalent to RemoveJob followed by AddJob).
func (s *Scheduler) AddJob(id string, priority int, schedule jobs.Schedule) error {
	now := time.Now()
	runner, err := newRunner(schedule, now)
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok {
		s.removeLocked(existing)
	}

	// A one-shot runner's only activation is its registration instant,
	// which NextRun(now) already treats as passed.
	var next time.Time
	if oneShot, ok := runner.(oneShotRunner); ok {
		next = oneShot.at
	} else {
		next = runner.NextRun(now)
	}
	if next.IsZero() {
		logger.DebugF("AddJob: job %q has no future activation, not scheduling", id)
		return nil
	}

	e := &dueEntry{jobID: id, priority: priority, nextRun: next, runner: runner}
	heap.Push(&s.heap, e)
	s.entries[id] = e

	logger.InfoF("AddJob: scheduled job %q, next run at %s", id, next.Format(time.RFC3339))
	s.signalWake()
	return nil
}

// UpdateJob reschedules an existing job with a new priority/schedule.
func (s *Scheduler) UpdateJob(id string, priority int, schedule jobs.Schedule) error {
	return s.AddJob(id, priority, schedule)
}

// RemoveJob unregisters a job. It is not an error to remove an unknown id.
func (s *Scheduler) RemoveJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		s.removeLocked(e)
		s.signalWake()
	}
}

// removeLocked must be called with s.mu held.
func (s *Scheduler) removeLocked(e *dueEntry) {
	if e.index >= 0 && e.index < len(s.heap) && s.heap[e.index] == e {
		heap.Remove(&s.heap, e.index)
	}
	delete(s.entries, e.jobID)
}

// Len returns the number of jobs currently tracked.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// DueJob is a read-only snapshot of one tracked job's next activation, as
// returned by GetDueJobs.
type DueJob struct {
	JobID    string
	Priority int
	NextRun  time.Time
}

// GetDueJobs returns every tracked job's next activation, ordered by the
// same (nextRun, priority descending, id) tie-break sweep uses to decide
// emission order when multiple jobs are due in the same pass.
func (s *Scheduler) GetDueJobs() []DueJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DueJob, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, DueJob{JobID: id, Priority: e.priority, NextRun: e.nextRun})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].NextRun.Before(out[j].NextRun)
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].JobID < out[j].JobID
	})
	return out
}

// Metrics reports the scheduler's current load and polling cadence.
type Metrics struct {
	TrackedJobs int
	Running     bool
	NextWake    time.Duration
}

// GetMetrics returns a snapshot of the scheduler's current state.
func (s *Scheduler) GetMetrics() Metrics {
	s.mu.Lock()
	running := s.running
	tracked := len(s.entries)
	s.mu.Unlock()

	return Metrics{
		TrackedJobs: tracked,
		Running:     running,
		NextWake:    s.nextWakeDuration(),
	}
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start begins the polling loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already running")
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx)
	logger.InfoF("scheduler started (minCheck=%s maxCheck=%s dueBuffer=%s)", s.minCheck, s.maxCheck, s.dueBuf)
	return nil
}

// Stop halts the polling loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.nextWakeDuration())
	defer timer.Stop()

	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.nextWakeDuration())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.sweep()
			resetTimer()
		case <-s.wake:
			resetTimer()
		}
	}
}

// nextWakeDuration returns how long to sleep before the next sweep,
// clamped to [minCheck, maxCheck].
func (s *Scheduler) nextWakeDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.heap) == 0 {
		return s.maxCheck
	}

	d := time.Until(s.heap[0].nextRun)
	switch {
	case d < s.minCheck:
		d = s.minCheck
	case d > s.maxCheck:
		d = s.maxCheck
	}
	return d
}

// sweep pops every entry due at or before now+dueBuf, notifies its
// DueNotifier, and reschedules entries whose runner still has a future
// activation. A panic or error evaluating one job's next run is recovered
// and logged so the loop itself never dies.
func (s *Scheduler) sweep() {
	now := time.Now().Add(s.dueBuf)

	var due []*dueEntry
	s.mu.Lock()
	for len(s.heap) > 0 && !s.heap[0].nextRun.After(now) {
		e := heap.Pop(&s.heap).(*dueEntry)
		delete(s.entries, e.jobID)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fireAndReschedule(e)
	}
}

func (s *Scheduler) fireAndReschedule(e *dueEntry) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorF("scheduler: recovered panic evaluating job %q: %v", e.jobID, r)
		}
	}()

	s.notify.NotifyJobDue(e.jobID)

	next := e.runner.NextRun(e.nextRun)
	if next.IsZero() {
		logger.DebugF("sweep: job %q has no further activations", e.jobID)
		return
	}

	s.mu.Lock()
	e.nextRun = next
	heap.Push(&s.heap, e)
	s.entries[e.jobID] = e
	s.mu.Unlock()
}
