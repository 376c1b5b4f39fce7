// Package daemon wires the daemon's components together (spec C1-C8):
// storage, registry, scheduler, executor, the IPC socket, the optional
// HTTP control API, the audit logger, and the secret sync engine. It is
// the one place that owns on-disk layout under the user's home directory
// and lifecycle ordering, so cmd/lshd itself stays a thin shim that reads
// its environment and waits for SIGINT/SIGTERM.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gwicho38/lsh-sub006/internal/audit"
	"github.com/gwicho38/lsh-sub006/internal/executor"
	"github.com/gwicho38/lsh-sub006/internal/httpapi"
	"github.com/gwicho38/lsh-sub006/internal/ipc"
	"github.com/gwicho38/lsh-sub006/internal/registry"
	"github.com/gwicho38/lsh-sub006/internal/scheduler"
	"github.com/gwicho38/lsh-sub006/internal/storage"
	"github.com/gwicho38/lsh-sub006/internal/syncengine"
	"github.com/gwicho38/lsh-sub006/l3"
	"github.com/gwicho38/lsh-sub006/lifecycle"
	"github.com/gwicho38/lsh-sub006/rest/server"
)

var logger = l3.Get()

// Config controls where the daemon keeps its state and which optional
// surfaces it exposes. Every field has a zero-value default derived from
// the current user, matching spec §6's `~/.lsh/` layout.
type Config struct {
	// HomeDir overrides ~/.lsh. Tests set this to a temp directory.
	HomeDir string

	// APIEnabled starts the HTTP control API (LSH_API_ENABLED).
	APIEnabled bool
	// APIPort is the HTTP control API's listen port (LSH_API_PORT).
	APIPort int16
	// APIKey, if non-empty, is required as a bearer token on every HTTP
	// control API request (LSH_API_KEY).
	APIKey string
}

// Daemon owns every long-lived component and the socket/pid files that
// identify this process to CLI clients.
type Daemon struct {
	cfg Config

	manager  lifecycle.ComponentManager
	backend  storage.Backend
	registry *registry.Registry
	sched    *scheduler.Scheduler
	exec     *executor.Supervisor
	ops      *ipc.Ops
	auditLog *audit.Logger
	sync     *syncengine.Engine

	sockPath string
	pidPath  string

	ipcServer  *ipc.Server
	httpServer server.Server

	pumpCancel context.CancelFunc
	pumpWg     sync.WaitGroup
}

// New builds a Daemon and every component it owns, but starts nothing.
func New(cfg Config) (*Daemon, error) {
	homeDir := cfg.HomeDir
	if homeDir == "" {
		dir, err := defaultHomeDir()
		if err != nil {
			return nil, fmt.Errorf("daemon: resolve home directory: %w", err)
		}
		homeDir = dir
	}
	lshDir := filepath.Join(homeDir, ".lsh")
	if err := os.MkdirAll(lshDir, 0o755); err != nil {
		return nil, fmt.Errorf("daemon: create state directory: %w", err)
	}

	backend, err := storage.NewFileStore(filepath.Join(lshDir, "storage.json"))
	if err != nil {
		return nil, fmt.Errorf("daemon: open storage: %w", err)
	}

	ctx := context.Background()
	reg, err := registry.New(ctx, backend, registry.Options{})
	if err != nil {
		return nil, fmt.Errorf("daemon: build registry: %w", err)
	}

	sched := scheduler.New(reg, scheduler.Options{})
	exec := executor.New(reg)
	auditLog := audit.NewLogger(backend)

	d := &Daemon{
		cfg:      cfg,
		manager:  lifecycle.NewSimpleComponentManager(),
		backend:  backend,
		registry: reg,
		sched:    sched,
		exec:     exec,
		auditLog: auditLog,
		sockPath: socketPath(),
		pidPath:  filepath.Join(lshDir, "daemon.pid"),
	}

	syncEngine, err := syncengine.New(backend, syncengine.Options{CacheDir: filepath.Join(lshDir, "secrets-cache")})
	if err != nil {
		return nil, fmt.Errorf("daemon: build sync engine: %w", err)
	}
	d.sync = syncEngine

	d.ops = ipc.New(reg, sched, exec, d.requestShutdown)

	d.registerComponents()
	return d, nil
}

// SocketPath returns the per-user IPC socket path a daemon built with the
// zero-value Config listens on, for cmd/lsh to dial without depending on
// daemon internals.
func SocketPath() string { return socketPath() }

// DefaultHomeDir returns the directory a zero-value Config resolves `~`
// to, for cmd/lsh to locate the pid file and other on-disk state.
func DefaultHomeDir() (string, error) { return defaultHomeDir() }

// defaultHomeDir resolves the directory spec §6 calls `~`: $HOME if set,
// otherwise the current OS user's home directory.
func defaultHomeDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.HomeDir, nil
}

// socketPath derives the per-user IPC socket path spec §6 mandates:
// "/tmp/lsh-job-daemon-<user>.sock".
func socketPath() string {
	name := os.Getenv("USER")
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		} else {
			name = "unknown"
		}
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("lsh-job-daemon-%s.sock", name))
}

// registerComponents wires the long-running components into the lifecycle
// manager: the scheduler, the jobDue pump (which depends on the scheduler),
// the IPC server (which depends on both), and, when enabled, the HTTP API
// (which depends on the IPC server). The registry, executor, audit logger
// and sync engine are built in New and are not lifecycle components.
func (d *Daemon) registerComponents() {
	schedComponent := &lifecycle.SimpleComponent{
		CompId:    "scheduler",
		StartFunc: func() error { return d.sched.Start(context.Background()) },
		StopFunc:  func() error { d.sched.Stop(); return nil },
	}
	d.manager.Register(schedComponent)

	pumpComponent := &lifecycle.SimpleComponent{
		CompId:    "jobdue-pump",
		StartFunc: d.startJobDuePump,
		StopFunc:  d.stopJobDuePump,
	}
	d.manager.Register(pumpComponent)

	ipcComponent := &lifecycle.SimpleComponent{
		CompId: "ipc-server",
		StartFunc: func() error {
			server := ipc.NewServer(d.ops, d.sockPath, d.pidPath)
			d.ipcServer = server
			return server.Start()
		},
		StopFunc: func() error {
			if d.ipcServer != nil {
				return d.ipcServer.Stop()
			}
			return nil
		},
	}
	d.manager.Register(ipcComponent)

	_ = d.manager.AddDependency("jobdue-pump", "scheduler")
	_ = d.manager.AddDependency("ipc-server", "scheduler")
	_ = d.manager.AddDependency("ipc-server", "jobdue-pump")

	if d.cfg.APIEnabled {
		httpComponent := &lifecycle.SimpleComponent{
			CompId: "http-api",
			StartFunc: func() error {
				srv, err := httpapi.New(d.ops, httpapi.Options{
					Options: server.Options{
						ListenHost: "127.0.0.1",
						ListenPort: d.cfg.APIPort,
					},
					BearerToken: d.cfg.APIKey,
					AuditLog:    d.auditLog.Log,
				})
				if err != nil {
					return err
				}
				d.httpServer = srv
				return srv.Start()
			},
			StopFunc: func() error {
				if d.httpServer != nil {
					return d.httpServer.Stop()
				}
				return nil
			},
		}
		d.manager.Register(httpComponent)
		_ = d.manager.AddDependency("http-api", "ipc-server")
	}
}

// startJobDuePump subscribes to the registry's event stream and runs
// every job that comes due through the executor. It is its own lifecycle
// component (rather than baked into the scheduler or executor) because
// neither of those packages owns the bridge between them (spec Design
// Note §9 keeps them decoupled).
func (d *Daemon) startJobDuePump() error {
	ctx, cancel := context.WithCancel(context.Background())
	d.pumpCancel = cancel
	events := d.registry.Subscribe()

	d.pumpWg.Add(1)
	go func() {
		defer d.pumpWg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if evt.Kind != registry.EventJobDue {
					continue
				}
				d.runDueJob(ctx, evt.JobID)
			}
		}
	}()
	return nil
}

func (d *Daemon) runDueJob(ctx context.Context, jobID string) {
	spec, err := d.registry.GetJob(jobID)
	if err != nil {
		logger.WarnF("daemon: jobDue for unknown job %s: %v", jobID, err)
		return
	}
	if _, err := d.exec.ExecuteWithRetry(ctx, spec); err != nil {
		logger.ErrorF("daemon: scheduled execution of %s failed: %v", jobID, err)
	}
}

func (d *Daemon) stopJobDuePump() error {
	if d.pumpCancel != nil {
		d.pumpCancel()
	}
	d.pumpWg.Wait()
	return nil
}

// requestShutdown is passed to ipc.Ops as its shutdown callback; it sends
// SIGTERM to this process, so the IPC "stopDaemon" op and an external
// signal share one path: cmd/lshd's signal handler, which stops every
// component in dependency order and then exits.
func (d *Daemon) requestShutdown() {
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		logger.ErrorF("daemon: shutdown requested via IPC failed: %v", err)
	}
}

// Start brings up every registered component in dependency order.
func (d *Daemon) Start() error {
	return d.manager.StartAll()
}

// Stop tears down every registered component, then the audit logger and
// storage backend.
func (d *Daemon) Stop() error {
	err := d.manager.StopAll()
	d.auditLog.Stop()
	if closeErr := d.backend.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Ops exposes the shared control-plane operations, for tests and for
// cmd/lsh's in-process testing harness.
func (d *Daemon) Ops() *ipc.Ops { return d.ops }

// SyncEngine exposes the secret sync engine, for cmd/lsh's push/pull
// commands when they run against an in-process daemon (tests) rather
// than over the socket.
func (d *Daemon) SyncEngine() *syncengine.Engine { return d.sync }
