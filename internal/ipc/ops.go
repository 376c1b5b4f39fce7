// Package ipc implements the daemon's control-plane operations and the
// Unix-domain socket server that exposes them (spec C5). Ops is shared
// verbatim by the HTTP control API (C6) so both transports invoke the same
// code path. Ops itself writes no audit entries: only the HTTP handlers
// log mutations to the audit log, and the socket server does not.
package ipc

import (
	"context"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/errkind"
	"github.com/gwicho38/lsh-sub006/internal/executor"
	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/internal/registry"
	"github.com/gwicho38/lsh-sub006/internal/scheduler"
)

// Ops is the full set of daemon control operations, independent of
// transport. Both the IPC frame dispatcher and the HTTP router call
// through this type.
type Ops struct {
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Executor  *executor.Supervisor

	startedAt    time.Time
	shutdownFunc func()
}

// New constructs an Ops bound to the daemon's core components. shutdown is
// invoked by StopDaemon/RestartDaemon; it is supplied by internal/daemon so Ops
// itself never touches process lifecycle directly.
func New(reg *registry.Registry, sched *scheduler.Scheduler, exec *executor.Supervisor, shutdown func()) *Ops {
	return &Ops{
		Registry:     reg,
		Scheduler:    sched,
		Executor:     exec,
		startedAt:    time.Now(),
		shutdownFunc: shutdown,
	}
}

// StatusReply is returned by GetStatus.
type StatusReply struct {
	Uptime       string `json:"uptime"`
	JobCount     int    `json:"jobCount"`
	ScheduledJob int    `json:"scheduledJobs"`
}

// GetStatus reports daemon uptime and job counts.
func (o *Ops) GetStatus(ctx context.Context) (*StatusReply, error) {
	jobList := o.Registry.ListJobs()
	return &StatusReply{
		Uptime:       time.Since(o.startedAt).String(),
		JobCount:     len(jobList),
		ScheduledJob: o.Scheduler.Len(),
	}, nil
}

// ListJobs returns every known JobSpec.
func (o *Ops) ListJobs(ctx context.Context) ([]*jobs.JobSpec, error) {
	return o.Registry.ListJobs(), nil
}

// GetJob returns a single JobSpec by id.
func (o *Ops) GetJob(ctx context.Context, id string) (*jobs.JobSpec, error) {
	return o.Registry.GetJob(id)
}

// CreateJob registers a new JobSpec and, if it has a recurring schedule,
// arms it in the scheduler.
func (o *Ops) CreateJob(ctx context.Context, spec *jobs.JobSpec) (*jobs.JobSpec, error) {
	if err := o.Registry.CreateJob(ctx, spec); err != nil {
		return nil, err
	}
	if spec.Schedule.Kind != jobs.ScheduleKindNone {
		if err := o.Scheduler.AddJob(spec.ID, spec.Priority, spec.Schedule); err != nil {
			return nil, errkind.Wrap(errkind.InvalidInput, "ipc: failed to arm schedule", err)
		}
	}
	return o.Registry.GetJob(spec.ID)
}

// StartJob runs an existing job immediately, out of band from its
// schedule, without blocking for completion.
func (o *Ops) StartJob(ctx context.Context, id string) (*jobs.ExecutionRecord, error) {
	spec, err := o.Registry.GetJob(id)
	if err != nil {
		return nil, err
	}
	adhoc := spec.Clone()
	adhoc.Type = jobs.TypeAdhoc

	startedCh := make(chan *jobs.ExecutionRecord, 1)
	recCh := make(chan *jobs.ExecutionRecord, 1)
	go func() {
		rec, _ := o.Executor.ExecuteWithRetryNotify(context.Background(), adhoc, func(r *jobs.ExecutionRecord) {
			select {
			case startedCh <- r:
			default:
			}
		})
		recCh <- rec
	}()

	select {
	case rec := <-recCh:
		return rec, nil
	case <-time.After(50 * time.Millisecond):
		// Started, but don't block the caller on completion; the caller
		// can poll GetJobHistory for the final record. The onStart hook
		// above fires synchronously before the child process spawns, so
		// the running placeholder below almost always carries the real
		// execution id a client needs to later call StopJob.
		select {
		case started := <-startedCh:
			return started, nil
		default:
			return &jobs.ExecutionRecord{JobID: id, Status: jobs.ExecRunning, StartTime: time.Now()}, nil
		}
	}
}

// TriggerJob is an alias for StartJob that waits for completion; it is
// named separately because the IPC/HTTP surfaces expose both semantics.
func (o *Ops) TriggerJob(ctx context.Context, id string) (*jobs.ExecutionRecord, error) {
	spec, err := o.Registry.GetJob(id)
	if err != nil {
		return nil, err
	}
	adhoc := spec.Clone()
	adhoc.Type = jobs.TypeAdhoc
	return o.Executor.ExecuteWithRetry(ctx, adhoc)
}

// StopJob cancels the execution currently running for jobID (if any),
// sending it signal (default SIGTERM when empty) per spec §4.4's
// stopJob(id, signal?).
func (o *Ops) StopJob(ctx context.Context, jobID string, signal string) (bool, error) {
	_, stopped := o.Executor.StopJob(jobID, signal)
	return stopped, nil
}

// RemoveJob deletes a job from the registry and disarms its schedule.
func (o *Ops) RemoveJob(ctx context.Context, id string) error {
	o.Scheduler.RemoveJob(id)
	return o.Registry.RemoveJob(ctx, id)
}

// GetJobHistory returns up to limit ExecutionRecords for a job, most
// recent first.
func (o *Ops) GetJobHistory(ctx context.Context, id string, limit int) ([]*jobs.ExecutionRecord, error) {
	return o.Registry.GetHistory(id, limit)
}

// GetJobStatistics returns cached JobStatistics for a job.
func (o *Ops) GetJobStatistics(ctx context.Context, id string) (*jobs.JobStatistics, error) {
	return o.Registry.GetStatistics(id)
}

// StopDaemon triggers a graceful shutdown.
func (o *Ops) StopDaemon(ctx context.Context) error {
	if o.shutdownFunc != nil {
		go o.shutdownFunc()
	}
	return nil
}

// RestartDaemon is currently equivalent to StopDaemon: daemon restart is
// delegated to the process supervisor (systemd, launchd, etc.) restarting
// the process after a clean exit.
func (o *Ops) RestartDaemon(ctx context.Context) error {
	return o.StopDaemon(ctx)
}
