// Package executor implements the process supervisor (spec C4): one
// os/exec child process per execution, captured stdout/stderr, best-effort
// resource sampling, retry/backoff on failure, and signal-based
// cancellation escalating from SIGTERM to SIGKILL.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/internal/registry"
	"github.com/gwicho38/lsh-sub006/l3"
	"github.com/gwicho38/lsh-sub006/uuid"
)

var logger = l3.Get()

const (
	// maxCapturedBytes bounds how much of stdout/stderr is retained in an
	// ExecutionRecord; output beyond this is dropped and Truncated is set.
	maxCapturedBytes = 1 << 20 // 1 MiB per stream

	// killGrace is how long the supervisor waits after SIGTERM before
	// escalating to SIGKILL.
	killGrace = 5 * time.Second

	// sampleInterval is how often resource usage is polled while a
	// process runs.
	sampleInterval = 500 * time.Millisecond

	// maxBackoff caps the exponential retry backoff.
	maxBackoff = 60 * time.Second
	// baseBackoff is the first retry's backoff delay.
	baseBackoff = 250 * time.Millisecond
)

// active tracks one in-flight execution so Stop can signal it.
type active struct {
	jobID  string
	cmd    *exec.Cmd
	cancel context.CancelFunc
	sigCh  chan syscall.Signal
}

// Supervisor runs JobSpecs as child processes and records the outcome of
// every execution in a registry.Registry.
type Supervisor struct {
	reg *registry.Registry

	mu      sync.Mutex
	running map[string]*active // keyed by executionID
}

// New constructs a Supervisor that writes completed executions to reg.
func New(reg *registry.Registry) *Supervisor {
	return &Supervisor{
		reg:     reg,
		running: map[string]*active{},
	}
}

// newExecutionID generates a fresh v4 UUID; if entropy is briefly
// exhausted, it falls back to a timestamp-based identifier rather than
// failing the execution outright.
func newExecutionID() string {
	id, err := uuid.V4()
	if err != nil {
		return fmt.Sprintf("exec-%d", time.Now().UnixNano())
	}
	return id.String()
}

// Execute runs spec once and returns the sealed ExecutionRecord. recordStart
// is called before the child process spawns, so the execution is visible to
// GetHistory/GetStatistics for its whole lifetime, not just on completion.
func (s *Supervisor) Execute(ctx context.Context, spec *jobs.JobSpec) (*jobs.ExecutionRecord, error) {
	return s.execute(ctx, spec, nil)
}

// execute is Execute's implementation, with an optional onStart hook
// invoked synchronously right after the ExecutionRecord is allocated (and
// before the child process spawns), so a caller racing a short timeout
// against completion can still learn the execution id of a still-running
// job.
func (s *Supervisor) execute(ctx context.Context, spec *jobs.JobSpec, onStart func(*jobs.ExecutionRecord)) (*jobs.ExecutionRecord, error) {
	execID := newExecutionID()
	rec := s.reg.RecordStart(spec, execID)
	if onStart != nil {
		onStart(rec)
	}

	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if spec.TimeoutMS > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, time.Duration(spec.TimeoutMS)*time.Millisecond)
		defer cancelTimeout()
	}

	cmdCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(cmdCtx, "/bin/sh", "-c", spec.Command)
	cmd.Dir = spec.Cwd
	cmd.Env = buildEnv(spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := capturingWriter{onWrite: func(p []byte) { s.reg.RecordOutput(execID, "stdout", p) }}
	stderr := capturingWriter{onWrite: func(p []byte) { s.reg.RecordOutput(execID, "stderr", p) }}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		rec.ErrorType = "spawn"
		sealed, _ := s.reg.RecordCompletion(ctx, execID, jobs.ExecFailed, nil, "", err)
		if sealed != nil {
			rec = sealed
		}
		return rec, err
	}

	rec.PID = cmd.Process.Pid
	rec.PPID = os.Getpid()

	sigCh := make(chan syscall.Signal, 1)
	s.mu.Lock()
	s.running[execID] = &active{jobID: spec.ID, cmd: cmd, cancel: cancel, sigCh: sigCh}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, execID)
		s.mu.Unlock()
	}()

	sampler := newSampler(cmd.Process.Pid)
	sampleDone := make(chan struct{})
	go func() {
		defer close(sampleDone)
		sampler.run(cmdCtx, sampleInterval)
	}()

	waitErr := s.waitWithEscalation(runCtx, cmdCtx, cancel, cmd, sigCh)
	<-sampleDone

	rec.MaxMemoryMB = sampler.maxRSSMB()
	rec.AvgCPUPct = sampler.avgCPUPercent()
	if _, _, truncated := stdout.result(); truncated {
		rec.Truncated = true
	}
	if _, _, truncated := stderr.result(); truncated {
		rec.Truncated = true
	}

	status, exitCode, signal, errorType, classifyErr := classify(waitErr, runCtx.Err())
	rec.ErrorType = errorType
	sealed, err := s.reg.RecordCompletion(ctx, execID, status, exitCode, signal, classifyErr)
	if err != nil {
		logger.ErrorF("executor: failed to record execution %s: %v", execID, err)
		return rec, waitErr
	}
	return sealed, waitErr
}

// classify maps a Wait() error and context error into the terminal status,
// exit code, signal, and error-type/message a completed execution carries.
func classify(waitErr error, ctxErr error) (status jobs.ExecStatus, exitCode *int, signal, errorType string, err error) {
	if waitErr == nil {
		zero := 0
		return jobs.ExecCompleted, &zero, "", "", nil
	}

	if ctxErr == context.DeadlineExceeded {
		return jobs.ExecTimeout, nil, "", "timeout", errors.New("execution exceeded configured timeout")
	}

	var exitErr *exec.ExitError
	if as(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			sig := status.Signal().String()
			return jobs.ExecKilled, &code, sig, "signal", fmt.Errorf("terminated by signal %s", sig)
		}
		return jobs.ExecFailed, &code, "", "nonzero_exit", waitErr
	}

	return jobs.ExecFailed, nil, "", "exec_error", waitErr
}

// as reports whether err, or any error it wraps, is an *exec.ExitError,
// storing it in target; it is errors.As specialised to that one type.
func as(err error, target **exec.ExitError) bool {
	for err != nil {
		if e, ok := err.(*exec.ExitError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// waitWithEscalation waits for cmd to exit, or for runCtx to be canceled
// (timeout) or a signal to arrive on sigCh (explicit stopJob), in which
// case it signals the process group with the triggering signal (SIGTERM
// for a timeout), waits killGrace, and escalates to SIGKILL if still alive.
func (s *Supervisor) waitWithEscalation(runCtx, cmdCtx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, sigCh <-chan syscall.Signal) error {
	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var sig syscall.Signal
	select {
	case err := <-waitDone:
		return err
	case <-runCtx.Done():
		sig = syscall.SIGTERM
	case sig = <-sigCh:
	}

	signalProcessGroup(cmd.Process.Pid, sig)
	select {
	case err := <-waitDone:
		return err
	case <-time.After(killGrace):
		signalProcessGroup(cmd.Process.Pid, syscall.SIGKILL)
		cancel()
		return <-waitDone
	}
}

// signalProcessGroup sends sig to the process group led by pid. Errors are
// logged, not returned: by the time this runs, the process may have
// already exited on its own.
func signalProcessGroup(pid int, sig syscall.Signal) {
	if err := syscall.Kill(-pid, sig); err != nil {
		logger.DebugF("executor: signal %v to process group %d: %v", sig, pid, err)
	}
}

// signalNames maps the subset of signal names a client may request via
// stopJob to their syscall values; anything unrecognized falls back to
// SIGTERM.
var signalNames = map[string]syscall.Signal{
	"SIGTERM": syscall.SIGTERM,
	"SIGKILL": syscall.SIGKILL,
	"SIGINT":  syscall.SIGINT,
	"SIGHUP":  syscall.SIGHUP,
	"SIGQUIT": syscall.SIGQUIT,
}

// parseSignal resolves a client-supplied signal name, defaulting to SIGTERM
// when name is empty or unrecognized (spec §4.4's stopJob(id, signal?)).
func parseSignal(name string) syscall.Signal {
	if sig, ok := signalNames[name]; ok {
		return sig
	}
	return syscall.SIGTERM
}

// StopJob finds the execution currently running for jobID, if any, and
// sends it the requested signal (default SIGTERM), escalating to SIGKILL
// after killGrace if the process is still alive. It returns the execution
// id that was signaled and whether anything was running for jobID.
func (s *Supervisor) StopJob(jobID string, signalName string) (string, bool) {
	sig := parseSignal(signalName)

	s.mu.Lock()
	var execID string
	var a *active
	for id, entry := range s.running {
		if entry.jobID == jobID {
			execID, a = id, entry
			break
		}
	}
	s.mu.Unlock()
	if a == nil {
		return "", false
	}

	select {
	case a.sigCh <- sig:
	default:
	}
	return execID, true
}

// ExecuteWithRetry runs spec, retrying on a failed (not killed or timed
// out) terminal status up to spec.MaxRetries times with exponential
// backoff capped at maxBackoff.
func (s *Supervisor) ExecuteWithRetry(ctx context.Context, spec *jobs.JobSpec) (*jobs.ExecutionRecord, error) {
	return s.ExecuteWithRetryNotify(ctx, spec, nil)
}

// ExecuteWithRetryNotify is ExecuteWithRetry with an onStart hook fired on
// the first attempt only (see execute).
func (s *Supervisor) ExecuteWithRetryNotify(ctx context.Context, spec *jobs.JobSpec, onStart func(*jobs.ExecutionRecord)) (*jobs.ExecutionRecord, error) {
	var rec *jobs.ExecutionRecord
	var err error

	for attempt := 0; ; attempt++ {
		retryCount, notify := attempt, onStart
		rec, err = s.execute(ctx, spec, func(r *jobs.ExecutionRecord) {
			r.RetryCount = retryCount
			if notify != nil {
				notify(r)
			}
		})
		onStart = nil
		if rec.Status != jobs.ExecFailed || attempt >= spec.MaxRetries {
			return rec, err
		}

		backoff := computeBackoff(attempt + 1)
		logger.InfoF("executor: job %q failed, retrying in %s (attempt %d/%d)", spec.ID, backoff, attempt+1, spec.MaxRetries)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return rec, ctx.Err()
		}
	}
}

func computeBackoff(attempt int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// buildEnv clones the daemon's own environment and overlays job-specific
// variables. The daemon's process-wide environment is never mutated.
func buildEnv(overlay map[string]string) []string {
	base := os.Environ()
	env := make([]string, len(base), len(base)+len(overlay))
	copy(env, base)
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}

// capturingWriter accumulates up to maxCapturedBytes of output and, when
// onWrite is set, streams every retained chunk out (spec C2's
// recordOutput) as it arrives rather than only once at the end.
type capturingWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	total     int64
	truncated bool
	onWrite   func(p []byte)
}

func (w *capturingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.total += int64(len(p))
	kept := p
	if w.buf.Len() < maxCapturedBytes {
		remaining := maxCapturedBytes - w.buf.Len()
		if len(p) > remaining {
			kept = p[:remaining]
			w.truncated = true
		}
		w.buf.Write(kept)
	} else {
		kept = nil
		w.truncated = true
	}
	onWrite := w.onWrite
	w.mu.Unlock()

	if onWrite != nil && len(kept) > 0 {
		onWrite(kept)
	}
	return len(p), nil
}

func (w *capturingWriter) result() (string, int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String(), w.total, w.truncated
}
