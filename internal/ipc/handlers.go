package ipc

import (
	"context"
	"encoding/json"

	"github.com/gwicho38/lsh-sub006/internal/errkind"
	"github.com/gwicho38/lsh-sub006/internal/jobs"
)

// idArgs is the shape shared by every operation that only needs a job id.
type idArgs struct {
	ID string `json:"id"`
}

// historyArgs additionally carries a history page size.
type historyArgs struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

// stopJobArgs carries the job id to cancel and an optional signal name,
// per spec §4.4's stopJob(id, signal?).
type stopJobArgs struct {
	ID     string `json:"id"`
	Signal string `json:"signal"`
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return errkind.New(errkind.InvalidInput, "missing request arguments")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return errkind.Wrap(errkind.InvalidInput, "malformed request arguments", err)
	}
	return nil
}

// buildHandlers wires the wire-level operation names to Ops methods. This
// is the only place that needs updating when a new control operation is
// added to Ops.
func (s *Server) buildHandlers() map[string]handlerFunc {
	o := s.ops
	return map[string]handlerFunc{
		"getStatus": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return o.GetStatus(ctx)
		},
		"listJobs": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return o.ListJobs(ctx)
		},
		"getJob": func(ctx context.Context, args json.RawMessage) (any, error) {
			var a idArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return o.GetJob(ctx, a.ID)
		},
		"createJob": func(ctx context.Context, args json.RawMessage) (any, error) {
			var spec jobs.JobSpec
			if err := decode(args, &spec); err != nil {
				return nil, err
			}
			return o.CreateJob(ctx, &spec)
		},
		"startJob": func(ctx context.Context, args json.RawMessage) (any, error) {
			var a idArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return o.StartJob(ctx, a.ID)
		},
		"triggerJob": func(ctx context.Context, args json.RawMessage) (any, error) {
			var a idArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return o.TriggerJob(ctx, a.ID)
		},
		"stopJob": func(ctx context.Context, args json.RawMessage) (any, error) {
			var a stopJobArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			stopped, err := o.StopJob(ctx, a.ID, a.Signal)
			if err != nil {
				return nil, err
			}
			return map[string]bool{"stopped": stopped}, nil
		},
		"removeJob": func(ctx context.Context, args json.RawMessage) (any, error) {
			var a idArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return nil, o.RemoveJob(ctx, a.ID)
		},
		"getJobHistory": func(ctx context.Context, args json.RawMessage) (any, error) {
			var a historyArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return o.GetJobHistory(ctx, a.ID, a.Limit)
		},
		"getJobStatistics": func(ctx context.Context, args json.RawMessage) (any, error) {
			var a idArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return o.GetJobStatistics(ctx, a.ID)
		},
		"stopDaemon": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return nil, o.StopDaemon(ctx)
		},
		"restartDaemon": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return nil, o.RestartDaemon(ctx)
		},
	}
}
