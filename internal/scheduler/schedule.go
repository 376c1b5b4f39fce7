package scheduler

import (
	"errors"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/jobs"
)

var (
	// ErrInvalidCron is returned when a cron expression does not parse.
	ErrInvalidCron = errors.New("scheduler: invalid cron expression")
	// ErrInvalidInterval is returned when an interval schedule's duration is <= 0.
	ErrInvalidInterval = errors.New("scheduler: invalid interval")
)

// nextRunner computes the next activation time for a jobs.Schedule. Each
// variant mirrors one of chrono's Schedule implementations, unified behind
// a single method so the heap and the run loop never branch on Kind.
type nextRunner interface {
	NextRun(from time.Time) time.Time
}

type intervalRunner struct{ d time.Duration }

func (r intervalRunner) NextRun(from time.Time) time.Time { return from.Add(r.d) }

type cronRunner struct{ ce *cronExpr }

func (r cronRunner) NextRun(from time.Time) time.Time { return r.ce.Next(from) }

// oneShotRunner fires once, at its registration time. Next returns the zero
// time once from has passed that point, matching chrono.OneShotSchedule:
// statelessly, the runner never needs to be told it already fired.
type oneShotRunner struct {
	at time.Time
}

func (r oneShotRunner) NextRun(from time.Time) time.Time {
	if from.Before(r.at) {
		return r.at
	}
	return time.Time{}
}

// newRunner builds a nextRunner for a jobs.Schedule. now is used as the
// reference point for one-shot jobs scheduled "from now".
func newRunner(s jobs.Schedule, now time.Time) (nextRunner, error) {
	switch s.Kind {
	case jobs.ScheduleKindInterval:
		if s.IntervalMS <= 0 {
			return nil, ErrInvalidInterval
		}
		return intervalRunner{d: time.Duration(s.IntervalMS) * time.Millisecond}, nil
	case jobs.ScheduleKindCron:
		ce, err := parseCron(s.Cron)
		if err != nil {
			return nil, err
		}
		return cronRunner{ce: ce}, nil
	case jobs.ScheduleKindNone:
		return oneShotRunner{at: now}, nil
	default:
		return nil, jobs.ErrInvalidSchedule
	}
}
