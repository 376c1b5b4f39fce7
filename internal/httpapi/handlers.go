package httpapi

import (
	"strconv"

	"github.com/gwicho38/lsh-sub006/internal/errkind"
	"github.com/gwicho38/lsh-sub006/internal/ipc"
	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/rest"
	"github.com/gwicho38/lsh-sub006/rest/server"
)

type handlers struct {
	ops   *ipc.Ops
	token string
	audit func(op, jobID string, err error)
}

// envelope is the {success,data,error} wire shape every route responds with.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *handlers) writeOK(ctx server.Context, data interface{}) {
	ctx.SetStatusCode(200)
	if err := ctx.Write(envelope{Success: true, Data: data}, rest.JSONContentType); err != nil {
		logger.ErrorF("httpapi: write response: %v", err)
	}
}

func (h *handlers) writeErr(ctx server.Context, err error) {
	kind := errkind.StorageFailure
	if k, ok := errkind.KindOf(err); ok {
		kind = k
	}
	ctx.SetStatusCode(errkind.HTTPStatus(kind))
	env := envelope{Success: false, Error: &errorBody{Kind: string(kind), Message: err.Error()}}
	if werr := ctx.Write(env, rest.JSONContentType); werr != nil {
		logger.ErrorF("httpapi: write error response: %v", werr)
	}
}

// requireAuth wraps a handler with a bearer-token check. rest/server's
// Server interface has no hook to attach a turbo.Authenticator directly
// (the router it wraps is private), so the gate is composed at the
// HandlerFunc level instead, the same way rest/server itself composes
// logging/auth concerns around a plain func(Context).
func (h *handlers) requireAuth(next server.HandlerFunc) server.HandlerFunc {
	if h.token == "" {
		return next
	}
	return func(ctx server.Context) {
		want := "Bearer " + h.token
		if ctx.GetHeader("Authorization") != want {
			ctx.SetStatusCode(401)
			_ = ctx.Write(envelope{Success: false, Error: &errorBody{
				Kind:    string(errkind.Unauthorized),
				Message: "missing or invalid bearer token",
			}}, rest.JSONContentType)
			return
		}
		next(ctx)
	}
}

func (h *handlers) register(srv server.Server) error {
	routes := []struct {
		method string
		path   string
		fn     server.HandlerFunc
	}{
		{"GET", pathPrefix + "/status", h.getStatus},
		{"GET", pathPrefix + "/jobs", h.listJobs},
		{"GET", pathPrefix + "/jobs/:id", h.getJob},
		{"POST", pathPrefix + "/jobs", h.createJob},
		{"POST", pathPrefix + "/jobs/:id/start", h.startJob},
		{"POST", pathPrefix + "/jobs/:id/trigger", h.triggerJob},
		{"POST", pathPrefix + "/jobs/:id/stop", h.stopJob},
		{"DELETE", pathPrefix + "/jobs/:id", h.removeJob},
		{"GET", pathPrefix + "/jobs/:id/history", h.getJobHistory},
		{"GET", pathPrefix + "/jobs/:id/statistics", h.getJobStatistics},
		{"POST", pathPrefix + "/daemon/stop", h.stopDaemon},
		{"POST", pathPrefix + "/daemon/restart", h.restartDaemon},
	}

	for _, rt := range routes {
		wrapped := h.requireAuth(rt.fn)
		var err error
		switch rt.method {
		case "GET":
			err = srv.Get(rt.path, wrapped)
		case "POST":
			err = srv.Post(rt.path, wrapped)
		case "DELETE":
			err = srv.Delete(rt.path, wrapped)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *handlers) getStatus(ctx server.Context) {
	status, err := h.ops.GetStatus(ctx.GetRequest().Context())
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, status)
}

func (h *handlers) listJobs(ctx server.Context) {
	list, err := h.ops.ListJobs(ctx.GetRequest().Context())
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, list)
}

func (h *handlers) getJob(ctx server.Context) {
	id, err := ctx.GetParam("id", server.PathParam)
	if err != nil {
		h.writeErr(ctx, errkind.Wrap(errkind.InvalidInput, "missing id", err))
		return
	}
	spec, err := h.ops.GetJob(ctx.GetRequest().Context(), id)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, spec)
}

func (h *handlers) createJob(ctx server.Context) {
	var spec jobs.JobSpec
	if err := ctx.Read(&spec); err != nil {
		h.writeErr(ctx, errkind.Wrap(errkind.InvalidInput, "malformed job spec body", err))
		return
	}
	created, err := h.ops.CreateJob(ctx.GetRequest().Context(), &spec)
	h.auditEvent("createJob", spec.ID, err)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, created)
}

func (h *handlers) startJob(ctx server.Context) {
	id, err := ctx.GetParam("id", server.PathParam)
	if err != nil {
		h.writeErr(ctx, errkind.Wrap(errkind.InvalidInput, "missing id", err))
		return
	}
	rec, err := h.ops.StartJob(ctx.GetRequest().Context(), id)
	h.auditEvent("startJob", id, err)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, rec)
}

func (h *handlers) triggerJob(ctx server.Context) {
	id, err := ctx.GetParam("id", server.PathParam)
	if err != nil {
		h.writeErr(ctx, errkind.Wrap(errkind.InvalidInput, "missing id", err))
		return
	}
	rec, err := h.ops.TriggerJob(ctx.GetRequest().Context(), id)
	h.auditEvent("triggerJob", id, err)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, rec)
}

func (h *handlers) stopJob(ctx server.Context) {
	id, err := ctx.GetParam("id", server.PathParam)
	if err != nil {
		h.writeErr(ctx, errkind.Wrap(errkind.InvalidInput, "missing id path parameter", err))
		return
	}
	signal, _ := ctx.GetParam("signal", server.QueryParam)
	stopped, err := h.ops.StopJob(ctx.GetRequest().Context(), id, signal)
	h.auditEvent("stopJob", id, err)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, map[string]bool{"stopped": stopped})
}

func (h *handlers) removeJob(ctx server.Context) {
	id, err := ctx.GetParam("id", server.PathParam)
	if err != nil {
		h.writeErr(ctx, errkind.Wrap(errkind.InvalidInput, "missing id", err))
		return
	}
	err = h.ops.RemoveJob(ctx.GetRequest().Context(), id)
	h.auditEvent("removeJob", id, err)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, nil)
}

func (h *handlers) getJobHistory(ctx server.Context) {
	id, err := ctx.GetParam("id", server.PathParam)
	if err != nil {
		h.writeErr(ctx, errkind.Wrap(errkind.InvalidInput, "missing id", err))
		return
	}
	limit := 0
	if raw, qerr := ctx.GetParam("limit", server.QueryParam); qerr == nil {
		if n, perr := strconv.Atoi(raw); perr == nil {
			limit = n
		}
	}
	history, err := h.ops.GetJobHistory(ctx.GetRequest().Context(), id, limit)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, history)
}

func (h *handlers) getJobStatistics(ctx server.Context) {
	id, err := ctx.GetParam("id", server.PathParam)
	if err != nil {
		h.writeErr(ctx, errkind.Wrap(errkind.InvalidInput, "missing id", err))
		return
	}
	stats, err := h.ops.GetJobStatistics(ctx.GetRequest().Context(), id)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, stats)
}

func (h *handlers) stopDaemon(ctx server.Context) {
	err := h.ops.StopDaemon(ctx.GetRequest().Context())
	h.auditEvent("stopDaemon", "", err)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, nil)
}

func (h *handlers) restartDaemon(ctx server.Context) {
	err := h.ops.RestartDaemon(ctx.GetRequest().Context())
	h.auditEvent("restartDaemon", "", err)
	if err != nil {
		h.writeErr(ctx, err)
		return
	}
	h.writeOK(ctx, nil)
}
