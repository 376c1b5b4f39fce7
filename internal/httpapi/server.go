// Package httpapi implements the daemon's HTTP control API (spec C6): a
// REST projection, under /api/v1, of the same Ops operations the Unix
// socket server (C5) exposes. Both transports call through ipc.Ops so a
// request issued via curl and one issued via the lsh CLI produce identical
// business logic. Audit entries are written here, by the HTTP handlers;
// mutations that arrive over the Unix socket are not audited.
package httpapi

import (
	"github.com/gwicho38/lsh-sub006/internal/ipc"
	"github.com/gwicho38/lsh-sub006/l3"
	"github.com/gwicho38/lsh-sub006/rest/server"
)

var logger = l3.Get()

// pathPrefix is prepended to every route this package registers.
const pathPrefix = "/api/v1"

// Options configures the HTTP control API on top of the shared rest/server
// Options (listen host/port, TLS, etc).
type Options struct {
	server.Options
	// BearerToken gates every route when non-empty. An empty
	// token disables auth, which is only appropriate for local/dev use.
	BearerToken string
	// AuditLog receives one entry per mutation, if non-nil.
	AuditLog func(op, jobID string, err error)
}

// New builds a rest/server.Server wired to ops and registers the full
// /api/v1 route table. The returned Server is a lifecycle.Component: the
// caller registers it with a lifecycle.ComponentManager alongside storage,
// registry, scheduler, and executor.
func New(ops *ipc.Ops, opts Options) (server.Server, error) {
	srvOpts := opts.Options
	if srvOpts.Id == "" {
		srvOpts.Id = "lshd-http-api"
	}
	if srvOpts.PathPrefix == "" {
		srvOpts.PathPrefix = "/"
	}

	srv, err := server.NewServer(&srvOpts)
	if err != nil {
		return nil, err
	}

	h := &handlers{ops: ops, token: opts.BearerToken, audit: opts.AuditLog}
	if err := h.register(srv); err != nil {
		return nil, err
	}
	return srv, nil
}

func (h *handlers) auditEvent(op, jobID string, err error) {
	if h.audit == nil {
		return
	}
	h.audit(op, jobID, err)
}

