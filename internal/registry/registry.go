// Package registry implements the in-memory job and execution-history index
// (spec C2): the authoritative view of every JobSpec the daemon knows
// about, a bounded per-job and global execution history with oldest-first
// eviction, derived JobStatistics, and a bounded event-subscription
// channel for the scheduler and executor to announce state transitions.
package registry

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gwicho38/lsh-sub006/collections"
	"github.com/gwicho38/lsh-sub006/internal/errkind"
	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/internal/storage"
	"github.com/gwicho38/lsh-sub006/l3"
	"github.com/gwicho38/lsh-sub006/uuid"
)

var logger = l3.Get()

// EventKind identifies the kind of state transition an Event announces.
type EventKind string

const (
	EventJobDue            EventKind = "jobDue"
	EventExecutionStarted  EventKind = "executionStarted"
	EventOutputRecorded    EventKind = "outputRecorded"
	EventExecutionComplete EventKind = "executionCompleted"
)

// Event is published on the registry's Subscribe channel. Consumers never
// block the publisher: channels are created with a fixed buffer and a slow
// subscriber simply misses events once it fills, rather than stalling the
// registry (spec Design Note §9, replacing a callback-based emitter with
// channels/observers).
type Event struct {
	Kind      EventKind
	JobID     string
	Execution *jobs.ExecutionRecord
	At        time.Time
}

const subscriberBuffer = 64

// DefaultMaxHistoryPerJob bounds how many ExecutionRecords the registry
// keeps in memory per job before evicting the oldest.
const DefaultMaxHistoryPerJob = 500

// DefaultMaxHistoryGlobal bounds the total number of ExecutionRecords kept
// in memory across all jobs.
const DefaultMaxHistoryGlobal = 20000

// DefaultRetentionDays bounds how long a sealed ExecutionRecord survives
// Cleanup before it is evicted and its log file unlinked.
const DefaultRetentionDays = 30

// Registry is the authoritative in-memory index of jobs and their
// execution history, write-through to a storage.Backend.
type Registry struct {
	mu sync.RWMutex

	backend storage.Backend
	logDir  string

	specs map[string]*jobs.JobSpec
	// history is ordered oldest-first per job; eviction pops the front.
	history map[string]collections.Queue[*jobs.ExecutionRecord]
	stats   map[string]*jobs.JobStatistics
	// execByID indexes every in-memory record by ExecutionID so
	// RecordOutput/RecordCompletion can find and mutate a running record
	// without scanning its job's whole history queue.
	execByID map[string]*jobs.ExecutionRecord

	maxPerJob     int
	maxGlobal     int
	retentionDays int
	totalHist     int

	subsMu sync.Mutex
	subs   []chan Event
}

// Options configures a Registry's bounds.
type Options struct {
	MaxHistoryPerJob int
	MaxHistoryGlobal int
	// RetentionDays bounds how long Cleanup keeps a sealed record.
	RetentionDays int
	// LogDir, if set, makes RecordStart assign each ExecutionRecord a log
	// file under this directory; RecordOutput mirrors output to it.
	LogDir string
}

// New constructs a Registry backed by backend, loading any persisted
// JobSpecs and ExecutionRecords into memory.
func New(ctx context.Context, backend storage.Backend, opts Options) (*Registry, error) {
	if opts.MaxHistoryPerJob <= 0 {
		opts.MaxHistoryPerJob = DefaultMaxHistoryPerJob
	}
	if opts.MaxHistoryGlobal <= 0 {
		opts.MaxHistoryGlobal = DefaultMaxHistoryGlobal
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}

	r := &Registry{
		backend:       backend,
		logDir:        opts.LogDir,
		specs:         map[string]*jobs.JobSpec{},
		history:       map[string]collections.Queue[*jobs.ExecutionRecord]{},
		stats:         map[string]*jobs.JobStatistics{},
		execByID:      map[string]*jobs.ExecutionRecord{},
		maxPerJob:     opts.MaxHistoryPerJob,
		maxGlobal:     opts.MaxHistoryGlobal,
		retentionDays: opts.RetentionDays,
	}

	var specs []*jobs.JobSpec
	if err := backend.List(ctx, storage.CollectionJobs, &specs); err != nil {
		return nil, errkind.Wrap(errkind.StorageFailure, "registry: load jobs", err)
	}
	for _, s := range specs {
		r.specs[s.ID] = s
	}

	var execs []*jobs.ExecutionRecord
	if err := backend.List(ctx, storage.CollectionExecutions, &execs); err != nil {
		return nil, errkind.Wrap(errkind.StorageFailure, "registry: load executions", err)
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartTime.Before(execs[j].StartTime) })
	for _, e := range execs {
		r.appendHistoryLocked(e)
		r.recomputeStatsLocked(e.JobID)
	}

	logger.InfoF("registry: loaded %d jobs, %d execution records", len(r.specs), len(execs))
	return r, nil
}

// Subscribe returns a channel of Events. The channel is closed never; the
// caller should stop reading it when done. The channel has a fixed buffer;
// an event that finds it full is dropped for that subscriber and a warning
// is logged (events are best-effort notifications, not a durable log —
// ExecutionRecords themselves are the durable log).
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()
	return ch
}

func (r *Registry) publish(ev Event) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			logger.WarnF("registry: subscriber channel full, dropping %s event for job %q", ev.Kind, ev.JobID)
		}
	}
}

// CreateJob validates and persists a new JobSpec.
func (r *Registry) CreateJob(ctx context.Context, spec *jobs.JobSpec) error {
	if err := spec.Validate(); err != nil {
		return errkind.Wrap(errkind.InvalidInput, "registry: invalid job spec", err)
	}

	r.mu.Lock()
	if _, exists := r.specs[spec.ID]; exists {
		r.mu.Unlock()
		return errkind.New(errkind.AlreadyExists, fmt.Sprintf("job %q already exists", spec.ID))
	}
	now := time.Now()
	spec.CreatedAt = now
	spec.UpdatedAt = now
	if spec.Status == "" {
		spec.Status = jobs.StatusCreated
	}
	cp := spec.Clone()
	r.specs[spec.ID] = cp
	r.mu.Unlock()

	if err := r.backend.Upsert(ctx, storage.CollectionJobs, spec.ID, cp); err != nil {
		return errkind.Wrap(errkind.StorageFailure, "registry: persist job", err)
	}
	return nil
}

// UpdateJob persists mutations to an existing JobSpec. fn is called with
// the registry's lock held, so it must not call back into the registry.
func (r *Registry) UpdateJob(ctx context.Context, id string, fn func(*jobs.JobSpec)) (*jobs.JobSpec, error) {
	r.mu.Lock()
	spec, ok := r.specs[id]
	if !ok {
		r.mu.Unlock()
		return nil, errkind.New(errkind.NotFound, fmt.Sprintf("job %q not found", id))
	}
	fn(spec)
	spec.UpdatedAt = time.Now()
	cp := spec.Clone()
	r.mu.Unlock()

	if err := r.backend.Upsert(ctx, storage.CollectionJobs, id, cp); err != nil {
		return nil, errkind.Wrap(errkind.StorageFailure, "registry: persist job update", err)
	}
	return cp, nil
}

// RemoveJob deletes a JobSpec and its in-memory execution history. Durable
// ExecutionRecords in storage are left in place for audit purposes.
func (r *Registry) RemoveJob(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.specs[id]; !ok {
		r.mu.Unlock()
		return errkind.New(errkind.NotFound, fmt.Sprintf("job %q not found", id))
	}
	delete(r.specs, id)
	if q, ok := r.history[id]; ok {
		r.totalHist -= q.Size()
		it := q.Iterator()
		for it.HasNext() {
			delete(r.execByID, it.Next().ExecutionID)
		}
		delete(r.history, id)
	}
	delete(r.stats, id)
	r.mu.Unlock()

	if err := r.backend.Delete(ctx, storage.CollectionJobs, id); err != nil && err != storage.ErrNotFound {
		return errkind.Wrap(errkind.StorageFailure, "registry: delete job", err)
	}
	return nil
}

// GetJob returns a copy of the JobSpec identified by id.
func (r *Registry) GetJob(id string) (*jobs.JobSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[id]
	if !ok {
		return nil, errkind.New(errkind.NotFound, fmt.Sprintf("job %q not found", id))
	}
	return spec.Clone(), nil
}

// ListJobs returns a copy of every known JobSpec.
func (r *Registry) ListJobs() []*jobs.JobSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*jobs.JobSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newExecutionID mints an execution id of the form spec §4.2 documents:
// exec_<epochms>_<rand>.
func newExecutionID() string {
	suffix := fmt.Sprintf("%d", time.Now().UnixNano()%1e6)
	if id, err := uuid.V4(); err == nil {
		suffix = strings.SplitN(id.String(), "-", 2)[0]
	}
	return fmt.Sprintf("exec_%d_%s", time.Now().UnixMilli(), suffix)
}

// RecordStart allocates (or adopts) an ExecutionRecord for a job about to
// run, snapshotting its env/cwd/user/tags/priority, and makes it visible to
// GetHistory/GetStatistics immediately so in-flight jobs are not invisible
// until they complete (spec §4.2/§5).
func (r *Registry) RecordStart(spec *jobs.JobSpec, executionID string) *jobs.ExecutionRecord {
	if executionID == "" {
		executionID = newExecutionID()
	}

	rec := &jobs.ExecutionRecord{
		ExecutionID:      executionID,
		JobID:            spec.ID,
		JobName:          spec.Name,
		Command:          spec.Command,
		StartTime:        time.Now(),
		Status:           jobs.ExecRunning,
		Environment:      spec.Env,
		WorkingDirectory: spec.Cwd,
		User:             spec.User,
		Tags:             append([]string(nil), spec.Tags...),
		Priority:         spec.Priority,
		Scheduled:        spec.Type == jobs.TypeScheduled,
	}
	if hostname, err := os.Hostname(); err == nil {
		rec.Hostname = hostname
	}
	if r.logDir != "" {
		rec.LogFile = filepath.Join(r.logDir, executionID+".log")
	}

	r.mu.Lock()
	r.appendHistoryLocked(rec)
	r.recomputeStatsLocked(rec.JobID)
	r.mu.Unlock()

	r.publish(Event{Kind: EventExecutionStarted, JobID: rec.JobID, Execution: rec, At: time.Now()})
	return rec
}

// RecordOutput appends a chunk of captured stdout/stderr to the in-memory
// record identified by executionID, mirrors it to the record's log file
// when one is configured, and emits an outputRecorded event. It is a no-op
// if executionID is unknown (e.g. the record was already evicted).
func (r *Registry) RecordOutput(executionID, stream string, data []byte) {
	r.mu.Lock()
	rec, ok := r.execByID[executionID]
	if ok {
		switch stream {
		case "stderr":
			rec.Stderr += string(data)
		default:
			rec.Stdout += string(data)
		}
		rec.OutputSize += int64(len(data))
		logFile := rec.LogFile
		r.mu.Unlock()

		if logFile != "" {
			appendLogFile(logFile, data)
		}
		r.publish(Event{Kind: EventOutputRecorded, JobID: rec.JobID, Execution: rec, At: time.Now()})
		return
	}
	r.mu.Unlock()
}

// appendLogFile opens path in append mode (creating it if needed) and
// writes data. Failures are logged, not returned: a log-mirroring failure
// must never fail the execution it is mirroring.
func appendLogFile(path string, data []byte) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.WarnF("registry: failed to open log file %s: %v", path, err)
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(data); err != nil {
		logger.WarnF("registry: failed to append log file %s: %v", path, err)
	}
}

// RecordCompletion seals the record identified by executionID with its
// terminal status, updates statistics, persists it through the storage
// backend, and emits an executionCompleted event. It returns NotFound if
// executionID is unknown.
func (r *Registry) RecordCompletion(ctx context.Context, executionID string, status jobs.ExecStatus, exitCode *int, signal string, execErr error) (*jobs.ExecutionRecord, error) {
	r.mu.Lock()
	rec, ok := r.execByID[executionID]
	if !ok {
		r.mu.Unlock()
		return nil, errkind.New(errkind.NotFound, fmt.Sprintf("no in-flight execution %q", executionID))
	}

	now := time.Now()
	rec.EndTime = &now
	rec.DurationMS = now.Sub(rec.StartTime).Milliseconds()
	rec.Status = status
	rec.ExitCode = exitCode
	rec.Signal = signal
	if execErr != nil {
		rec.ErrorMessage = execErr.Error()
	}

	r.recomputeStatsLocked(rec.JobID)
	r.mu.Unlock()

	if err := r.backend.Upsert(ctx, storage.CollectionExecutions, rec.ExecutionID, rec); err != nil {
		return rec, errkind.Wrap(errkind.StorageFailure, "registry: persist execution record", err)
	}

	r.publish(Event{Kind: EventExecutionComplete, JobID: rec.JobID, Execution: rec, At: time.Now()})
	return rec, nil
}

// appendHistoryLocked must be called with r.mu held.
func (r *Registry) appendHistoryLocked(rec *jobs.ExecutionRecord) {
	q, ok := r.history[rec.JobID]
	if !ok {
		q = collections.NewArrayQueue[*jobs.ExecutionRecord]()
		r.history[rec.JobID] = q
	}

	_ = q.Enqueue(rec)
	r.execByID[rec.ExecutionID] = rec
	r.totalHist++

	for q.Size() > r.maxPerJob {
		evicted, err := q.Dequeue()
		if err != nil {
			break
		}
		delete(r.execByID, evicted.ExecutionID)
		r.totalHist--
	}
	for r.totalHist > r.maxGlobal {
		if !r.evictOldestGlobalLocked() {
			break
		}
	}
}

// evictOldestGlobalLocked finds the job whose history queue's front record
// has the earliest StartTime and evicts it. Returns false if there is
// nothing left to evict.
func (r *Registry) evictOldestGlobalLocked() bool {
	var oldestJob string
	var oldestTime time.Time
	found := false

	for jobID, q := range r.history {
		if q.IsEmpty() {
			continue
		}
		front, err := q.Front()
		if err != nil {
			continue
		}
		if !found || front.StartTime.Before(oldestTime) {
			oldestJob = jobID
			oldestTime = front.StartTime
			found = true
		}
	}
	if !found {
		return false
	}
	evicted, err := r.history[oldestJob].Dequeue()
	if err != nil {
		return false
	}
	delete(r.execByID, evicted.ExecutionID)
	r.totalHist--
	return true
}

// recomputeStatsLocked rebuilds JobStatistics for jobID from its in-memory
// history. Must be called with r.mu held.
func (r *Registry) recomputeStatsLocked(jobID string) {
	q, ok := r.history[jobID]
	if !ok {
		return
	}

	stats := &jobs.JobStatistics{JobID: jobID}
	var durations []int64
	var sealedInOrder []*jobs.ExecutionRecord
	var failureCounts = map[string]int{}

	it := q.Iterator()
	for it.HasNext() {
		rec := it.Next()
		stats.TotalExecutions++
		switch rec.Status {
		case jobs.ExecCompleted:
			stats.Completed++
		case jobs.ExecFailed:
			stats.Failed++
			if rec.ErrorMessage != "" {
				failureCounts[rec.ErrorMessage]++
			}
		case jobs.ExecKilled:
			stats.Killed++
		case jobs.ExecTimeout:
			stats.Timeout++
		}
		if rec.Sealed() {
			sealedInOrder = append(sealedInOrder, rec)
			if rec.DurationMS > 0 {
				durations = append(durations, rec.DurationMS)
				stats.TotalDurationMS += rec.DurationMS
			}
		}
	}

	if stats.TotalExecutions > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.TotalExecutions) * 100
	}
	if len(durations) > 0 {
		stats.MinDurationMS = durations[0]
		stats.MaxDurationMS = durations[0]
		for _, d := range durations {
			if d < stats.MinDurationMS {
				stats.MinDurationMS = d
			}
			if d > stats.MaxDurationMS {
				stats.MaxDurationMS = d
			}
		}
		stats.AvgDurationMS = stats.TotalDurationMS / int64(len(durations))
	}

	stats.RecentTrend = recentTrend(sealedInOrder, stats.SuccessRate)
	stats.TopFailures = topFailures(failureCounts, stats.Failed)

	r.stats[jobID] = stats
}

// recentTrend implements spec §4.2's trend rule exactly: let recent be the
// last five sealed records; r is the fraction of those five that completed
// successfully; o is the job's overall success rate as a 0-1 fraction. The
// trend is improving if r exceeds o by more than 0.1, degrading if it
// trails by more than 0.1, and stable otherwise (including when fewer than
// five sealed records exist at all).
func recentTrend(sealedInOrder []*jobs.ExecutionRecord, overallSuccessRatePct float64) jobs.Trend {
	if len(sealedInOrder) < 5 {
		return jobs.TrendStable
	}
	recent := sealedInOrder[len(sealedInOrder)-5:]

	successful := 0
	for _, rec := range recent {
		if rec.Status == jobs.ExecCompleted {
			successful++
		}
	}
	r := float64(successful) / float64(len(recent))
	o := overallSuccessRatePct / 100

	switch {
	case r > o+0.1:
		return jobs.TrendImproving
	case r < o-0.1:
		return jobs.TrendDegrading
	default:
		return jobs.TrendStable
	}
}

// topFailures returns up to the ten most common failure messages, ranked by
// count, with each entry's share of total failures.
func topFailures(counts map[string]int, totalFailed int) []jobs.FailurePattern {
	if len(counts) == 0 {
		return nil
	}
	out := make([]jobs.FailurePattern, 0, len(counts))
	for msg, n := range counts {
		pct := 0.0
		if totalFailed > 0 {
			pct = float64(n) / float64(totalFailed) * 100
		}
		out = append(out, jobs.FailurePattern{Message: msg, Count: n, Percentage: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

// GetStatistics returns the cached JobStatistics for jobID.
func (r *Registry) GetStatistics(jobID string) (*jobs.JobStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stats[jobID]
	if !ok {
		return nil, errkind.New(errkind.NotFound, fmt.Sprintf("no statistics for job %q", jobID))
	}
	cp := *s
	cp.TopFailures = append([]jobs.FailurePattern(nil), s.TopFailures...)
	return &cp, nil
}

// GetHistory returns up to limit ExecutionRecords for jobID, most recent
// first.
func (r *Registry) GetHistory(jobID string, limit int) ([]*jobs.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.history[jobID]
	if !ok {
		return nil, nil
	}

	var all []*jobs.ExecutionRecord
	it := q.Iterator()
	for it.HasNext() {
		all = append(all, it.Next())
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// GetAllStatistics returns the cached JobStatistics for every job with at
// least one recorded execution.
func (r *Registry) GetAllStatistics() []*jobs.JobStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*jobs.JobStatistics, 0, len(r.stats))
	for _, s := range r.stats {
		cp := *s
		cp.TopFailures = append([]jobs.FailurePattern(nil), s.TopFailures...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// NotifyJobDue publishes a jobDue event; called by the scheduler when a
// job's schedule fires.
func (r *Registry) NotifyJobDue(jobID string) {
	r.publish(Event{Kind: EventJobDue, JobID: jobID, At: time.Now()})
}

// SearchCriteria describes a composite filter over execution history (spec
// §4.2). Zero-valued fields are not applied.
type SearchCriteria struct {
	JobID         string
	Statuses      []jobs.ExecStatus
	Since         time.Time
	Until         time.Time
	MinDurationMS int64
	MaxDurationMS int64
	Tags          []string
	User          string
	CommandRegex  string
	ExitCodes     []int
	Limit         int
}

// Search returns ExecutionRecords matching criteria, sorted by startTime
// descending, honoring an optional limit.
func (r *Registry) Search(criteria SearchCriteria) ([]*jobs.ExecutionRecord, error) {
	var re *regexp.Regexp
	if criteria.CommandRegex != "" {
		compiled, err := regexp.Compile(criteria.CommandRegex)
		if err != nil {
			return nil, errkind.Wrap(errkind.InvalidInput, "registry: invalid command regex", err)
		}
		re = compiled
	}

	r.mu.RLock()
	var candidates []*jobs.ExecutionRecord
	if criteria.JobID != "" {
		if q, ok := r.history[criteria.JobID]; ok {
			it := q.Iterator()
			for it.HasNext() {
				candidates = append(candidates, it.Next())
			}
		}
	} else {
		for _, q := range r.history {
			it := q.Iterator()
			for it.HasNext() {
				candidates = append(candidates, it.Next())
			}
		}
	}
	r.mu.RUnlock()

	out := make([]*jobs.ExecutionRecord, 0, len(candidates))
	for _, rec := range candidates {
		if !matchesCriteria(rec, criteria, re) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if criteria.Limit > 0 && criteria.Limit < len(out) {
		out = out[:criteria.Limit]
	}
	return out, nil
}

func matchesCriteria(rec *jobs.ExecutionRecord, c SearchCriteria, commandRegex *regexp.Regexp) bool {
	if len(c.Statuses) > 0 && !containsStatus(c.Statuses, rec.Status) {
		return false
	}
	if !c.Since.IsZero() && rec.StartTime.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && rec.StartTime.After(c.Until) {
		return false
	}
	if c.MinDurationMS > 0 && rec.DurationMS < c.MinDurationMS {
		return false
	}
	if c.MaxDurationMS > 0 && rec.DurationMS > c.MaxDurationMS {
		return false
	}
	if len(c.Tags) > 0 && !containsAny(rec.Tags, c.Tags) {
		return false
	}
	if c.User != "" && rec.User != c.User {
		return false
	}
	if commandRegex != nil && !commandRegex.MatchString(rec.Command) {
		return false
	}
	if len(c.ExitCodes) > 0 {
		if rec.ExitCode == nil {
			return false
		}
		matched := false
		for _, code := range c.ExitCodes {
			if code == *rec.ExitCode {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func containsStatus(set []jobs.ExecStatus, s jobs.ExecStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// ReportOptions configures Report's rendering.
type ReportOptions struct {
	JobID  string
	Since  time.Time
	Until  time.Time
	Format string // "text" (default), "csv", or "json"
}

// Report renders execution history matching options.JobID/Since/Until to
// plain text, CSV, or JSON (spec §4.2).
func (r *Registry) Report(options ReportOptions) (string, error) {
	recs, err := r.Search(SearchCriteria{JobID: options.JobID, Since: options.Since, Until: options.Until})
	if err != nil {
		return "", err
	}

	switch options.Format {
	case "csv":
		return reportCSV(recs)
	case "json":
		raw, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return "", errkind.Wrap(errkind.InvalidInput, "registry: render json report", err)
		}
		return string(raw), nil
	default:
		return reportText(recs), nil
	}
}

func reportText(recs []*jobs.ExecutionRecord) string {
	var b strings.Builder
	for _, rec := range recs {
		exit := "-"
		if rec.ExitCode != nil {
			exit = strconv.Itoa(*rec.ExitCode)
		}
		fmt.Fprintf(&b, "%s  %-12s  %-10s  status=%-9s exit=%-3s duration=%dms\n",
			rec.StartTime.Format(time.RFC3339), rec.JobID, rec.ExecutionID, rec.Status, exit, rec.DurationMS)
	}
	return b.String()
}

func reportCSV(recs []*jobs.ExecutionRecord) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"executionId", "jobId", "startTime", "status", "exitCode", "durationMs"}); err != nil {
		return "", err
	}
	for _, rec := range recs {
		exit := ""
		if rec.ExitCode != nil {
			exit = strconv.Itoa(*rec.ExitCode)
		}
		row := []string{rec.ExecutionID, rec.JobID, rec.StartTime.Format(time.RFC3339), string(rec.Status), exit, strconv.FormatInt(rec.DurationMS, 10)}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Cleanup evicts sealed records older than the registry's retention window,
// re-enforces each job's per-job cap, and unlinks the evicted records' log
// files and persisted copies (spec P5). It returns the number of records
// removed.
func (r *Registry) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)

	r.mu.Lock()
	var evicted []*jobs.ExecutionRecord
	for jobID, q := range r.history {
		var kept []*jobs.ExecutionRecord
		it := q.Iterator()
		for it.HasNext() {
			kept = append(kept, it.Next())
		}

		filtered := kept[:0:0]
		for _, rec := range kept {
			if rec.Sealed() && rec.StartTime.Before(cutoff) {
				evicted = append(evicted, rec)
				delete(r.execByID, rec.ExecutionID)
				r.totalHist--
				continue
			}
			filtered = append(filtered, rec)
		}
		if len(filtered) > r.maxPerJob {
			overflow := len(filtered) - r.maxPerJob
			for _, rec := range filtered[:overflow] {
				evicted = append(evicted, rec)
				delete(r.execByID, rec.ExecutionID)
				r.totalHist--
			}
			filtered = filtered[overflow:]
		}

		rebuilt := collections.NewArrayQueue[*jobs.ExecutionRecord]()
		for _, rec := range filtered {
			_ = rebuilt.Enqueue(rec)
		}
		r.history[jobID] = rebuilt
		r.recomputeStatsLocked(jobID)
	}
	r.mu.Unlock()

	for _, rec := range evicted {
		if rec.LogFile != "" {
			if err := os.Remove(rec.LogFile); err != nil && !os.IsNotExist(err) {
				logger.WarnF("registry: cleanup: failed to remove log file %s: %v", rec.LogFile, err)
			}
		}
		if err := r.backend.Delete(ctx, storage.CollectionExecutions, rec.ExecutionID); err != nil && err != storage.ErrNotFound {
			logger.WarnF("registry: cleanup: failed to delete execution record %s: %v", rec.ExecutionID, err)
		}
	}

	logger.InfoF("registry: cleanup evicted %d execution records older than %d days", len(evicted), r.retentionDays)
	return len(evicted), nil
}
