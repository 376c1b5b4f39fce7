package jobs

import "time"

// ExecStatus is the terminal or in-flight state of a single execution.
type ExecStatus string

const (
	ExecRunning   ExecStatus = "running"
	ExecCompleted ExecStatus = "completed"
	ExecFailed    ExecStatus = "failed"
	ExecKilled    ExecStatus = "killed"
	ExecTimeout   ExecStatus = "timeout"
)

// ExecutionRecord is a durable log of one invocation of a job: timing,
// exit status, captured output, and best-effort resource usage. It is
// created at spawn, mutated only by its supervising executor, and sealed
// (immutable) on completion.
type ExecutionRecord struct {
	ExecutionID string `json:"executionId" yaml:"executionId"`
	JobID       string `json:"jobId" yaml:"jobId"`
	JobName     string `json:"jobName" yaml:"jobName"`
	Command     string `json:"command" yaml:"command"`

	StartTime  time.Time  `json:"startTime" yaml:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty" yaml:"endTime,omitempty"`
	DurationMS int64      `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`

	Status ExecStatus `json:"status" yaml:"status"`

	ExitCode *int    `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
	Signal   string  `json:"signal,omitempty" yaml:"signal,omitempty"`
	PID      int     `json:"pid,omitempty" yaml:"pid,omitempty"`
	PPID     int     `json:"ppid,omitempty" yaml:"ppid,omitempty"`

	Stdout     string `json:"stdout,omitempty" yaml:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	OutputSize int64  `json:"outputSize" yaml:"outputSize"`
	Truncated  bool   `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	LogFile    string `json:"logFile,omitempty" yaml:"logFile,omitempty"`

	MaxMemoryMB float64 `json:"maxMemoryMb,omitempty" yaml:"maxMemoryMb,omitempty"`
	AvgCPUPct   float64 `json:"avgCpuPct,omitempty" yaml:"avgCpuPct,omitempty"`
	DiskIOMB    float64 `json:"diskIoMb,omitempty" yaml:"diskIoMb,omitempty"`

	Environment      map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	WorkingDirectory string            `json:"workingDirectory,omitempty" yaml:"workingDirectory,omitempty"`
	User             string            `json:"user,omitempty" yaml:"user,omitempty"`
	Hostname         string            `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Tags             []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority         int               `json:"priority" yaml:"priority"`
	Scheduled        bool              `json:"scheduled" yaml:"scheduled"`
	RetryCount       int               `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`
	ParentJobID      string            `json:"parentJobId,omitempty" yaml:"parentJobId,omitempty"`

	ErrorType    string `json:"errorType,omitempty" yaml:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	StackTrace   string `json:"stackTrace,omitempty" yaml:"stackTrace,omitempty"`
}

// Sealed reports whether the record has reached a terminal status.
func (e *ExecutionRecord) Sealed() bool {
	return e.Status != ExecRunning
}

// Trend classifies a job's recent performance relative to its historical
// success rate.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// FailurePattern is one entry in a job's top-10 most common failures.
type FailurePattern struct {
	Message    string  `json:"message" yaml:"message"`
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// JobStatistics is derived from a job's ExecutionRecord history and cached
// by the registry; it is recomputed on every completion.
type JobStatistics struct {
	JobID string `json:"jobId" yaml:"jobId"`

	TotalExecutions int `json:"totalExecutions" yaml:"totalExecutions"`
	Completed       int `json:"completed" yaml:"completed"`
	Failed          int `json:"failed" yaml:"failed"`
	Killed          int `json:"killed" yaml:"killed"`
	Timeout         int `json:"timeout" yaml:"timeout"`

	SuccessRate float64 `json:"successRate" yaml:"successRate"`

	MinDurationMS   int64 `json:"minDurationMs" yaml:"minDurationMs"`
	AvgDurationMS   int64 `json:"avgDurationMs" yaml:"avgDurationMs"`
	MaxDurationMS   int64 `json:"maxDurationMs" yaml:"maxDurationMs"`
	TotalDurationMS int64 `json:"totalDurationMs" yaml:"totalDurationMs"`

	AvgMaxMemoryMB float64 `json:"avgMaxMemoryMb,omitempty" yaml:"avgMaxMemoryMb,omitempty"`
	AvgCPUPct      float64 `json:"avgCpuPct,omitempty" yaml:"avgCpuPct,omitempty"`

	RecentTrend Trend `json:"recentTrend" yaml:"recentTrend"`

	TopFailures []FailurePattern `json:"topFailures,omitempty" yaml:"topFailures,omitempty"`
}

// AuditEvent describes one mutating control-plane operation. No package
// emits it: internal/audit persists its own audit.Event type instead.
type AuditEvent struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Actor     string    `json:"actor" yaml:"actor"`
	Operation string    `json:"operation" yaml:"operation"`
	JobID     string    `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	Outcome   string    `json:"outcome" yaml:"outcome"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}
