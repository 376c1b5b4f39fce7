// Package audit implements the daemon's audit-event sink (spec §7): every
// mutating operation on the HTTP control API produces one event, which
// this package persists durably; the IPC socket does not call it.
// Persistence failures are retried inline, in the caller's goroutine, with
// exponential backoff, then handed to a bounded in-memory queue that drains
// on its own schedule, so an unavailable backend delays the caller only for
// the inline retries.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/storage"
	"github.com/gwicho38/lsh-sub006/l3"
	"github.com/gwicho38/lsh-sub006/uuid"
)

var logger = l3.Get()

const (
	inlineRetries  = 3
	baseBackoff    = 100 * time.Millisecond
	maxBackoff     = 2 * time.Second
	queueCapacity  = 1000
	drainInterval  = 60 * time.Second
	entryMaxAge    = 24 * time.Hour
)

// Event is one audit record: an operation, the job (or other resource) it
// targeted, and whether it succeeded.
type Event struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	JobID     string `json:"jobId,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Logger buffers and persists Events against a storage.Backend.
type Logger struct {
	backend storage.Backend

	mu     sync.Mutex
	queue  []Event
	closed bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewLogger starts a Logger backed by backend. Call Stop to drain the
// queue one last time and halt the background drain loop.
func NewLogger(backend storage.Backend) *Logger {
	l := &Logger{
		backend: backend,
		stopCh:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drainLoop()
	return l
}

// Log records op (e.g. "createJob") against jobID, noting opErr if the
// operation failed. It retries the write inline up to inlineRetries times
// with exponential backoff; on persistent failure the event is queued for
// the background drain loop instead of being dropped.
func (l *Logger) Log(op, jobID string, opErr error) {
	id, err := uuid.V4()
	if err != nil {
		logger.ErrorF("audit: failed to generate event id: %v", err)
		return
	}

	event := Event{ID: id.String(), Op: op, JobID: jobID, Timestamp: time.Now().UnixMilli()}
	if opErr != nil {
		event.Error = opErr.Error()
	}

	if l.writeWithRetry(event) {
		return
	}

	l.enqueue(event)
}

// writeWithRetry attempts to persist event up to inlineRetries+1 times,
// backing off exponentially between attempts (base 100ms, capped at 2s).
func (l *Logger) writeWithRetry(event Event) bool {
	wait := baseBackoff
	for attempt := 0; attempt <= inlineRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(wait)
			wait *= 2
			if wait > maxBackoff {
				wait = maxBackoff
			}
		}
		if err := l.persist(event); err == nil {
			return true
		} else {
			logger.WarnF("audit: persist attempt %d/%d for event %s failed: %v", attempt+1, inlineRetries+1, event.ID, err)
		}
	}
	return false
}

func (l *Logger) persist(event Event) error {
	return l.backend.Upsert(context.Background(), storage.CollectionHistory, "audit-"+event.ID, event)
}

// enqueue appends event to the bounded in-memory queue, dropping the
// oldest entry when full so a backend outage never grows memory without
// bound.
func (l *Logger) enqueue(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if len(l.queue) >= queueCapacity {
		logger.WarnF("audit: queue full, dropping oldest buffered event %s", l.queue[0].ID)
		l.queue = l.queue[1:]
	}
	l.queue = append(l.queue, event)
}

// drainLoop retries queued events every drainInterval until the queue is
// empty or each entry expires past entryMaxAge.
func (l *Logger) drainLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.drainOnce()
		case <-l.stopCh:
			l.drainOnce()
			return
		}
	}
}

// drainOnce attempts to persist every queued event once, keeping only
// those that still fail and have not yet expired.
func (l *Logger) drainOnce() {
	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	now := time.Now()
	var remaining []Event
	for _, event := range pending {
		age := now.Sub(time.UnixMilli(event.Timestamp))
		if age > entryMaxAge {
			logger.WarnF("audit: dropping expired buffered event %s (age %s)", event.ID, age)
			continue
		}
		if err := l.persist(event); err != nil {
			remaining = append(remaining, event)
			continue
		}
	}

	if len(remaining) == 0 {
		return
	}
	l.mu.Lock()
	l.queue = append(remaining, l.queue...)
	l.mu.Unlock()
}

// QueueLen reports how many events are currently buffered, for tests and
// diagnostics.
func (l *Logger) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stop drains the queue one final time and halts the background loop.
func (l *Logger) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
