package ipc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/executor"
	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/internal/registry"
	"github.com/gwicho38/lsh-sub006/internal/scheduler"
	"github.com/gwicho38/lsh-sub006/internal/storage"
)

func newTestOps(t *testing.T) *Ops {
	t.Helper()
	backend, err := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	reg, err := registry.New(context.Background(), backend, registry.Options{})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	sched := scheduler.New(reg, scheduler.Options{})
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("scheduler.Start: %v", err)
	}
	t.Cleanup(sched.Stop)
	sup := executor.New(reg)
	return New(reg, sched, sup, func() {})
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "lshd.sock")
	pidPath := filepath.Join(dir, "daemon.pid")

	srv := NewServer(newTestOps(t), sockPath, pidPath)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, sockPath
}

func roundTrip(t *testing.T, sockPath string, req request) response {
	t.Helper()
	conn, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := writeFrame(conn, req); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	var resp response
	lenBuf := make([]byte, 4)
	if _, err := conn.Read(lenBuf); err != nil {
		t.Fatalf("read length prefix: %v", err)
	}
	n := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	buf := make([]byte, n)
	total := 0
	for total < n {
		m, err := conn.Read(buf[total:])
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		total += m
	}
	if err := json.Unmarshal(buf, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestServer_GetStatus(t *testing.T) {
	_, sockPath := startTestServer(t)

	resp := roundTrip(t, sockPath, request{ID: "1", Op: "getStatus"})
	if !resp.OK {
		t.Fatalf("got error response: %+v", resp.Error)
	}
}

func TestServer_CreateAndGetJob(t *testing.T) {
	_, sockPath := startTestServer(t)

	spec := jobs.JobSpec{ID: "job-1", Name: "echo job", Command: "echo hi", Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone}}
	args, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}

	createResp := roundTrip(t, sockPath, request{ID: "2", Op: "createJob", Args: args})
	if !createResp.OK {
		t.Fatalf("createJob failed: %+v", createResp.Error)
	}

	idArgsBytes, _ := json.Marshal(idArgs{ID: "job-1"})
	getResp := roundTrip(t, sockPath, request{ID: "3", Op: "getJob", Args: idArgsBytes})
	if !getResp.OK {
		t.Fatalf("getJob failed: %+v", getResp.Error)
	}
}

func TestServer_UnknownOp(t *testing.T) {
	_, sockPath := startTestServer(t)

	resp := roundTrip(t, sockPath, request{ID: "4", Op: "bogusOp"})
	if resp.OK {
		t.Fatal("expected failure for unknown op")
	}
	if resp.Error == nil || resp.Error.Kind != "InvalidInput" {
		t.Fatalf("got error %+v, want InvalidInput", resp.Error)
	}
}

func TestServer_RefusesStartWhenPidIsLive(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "lshd.sock")
	pidPath := filepath.Join(dir, "daemon.pid")

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	srv := NewServer(newTestOps(t), sockPath, pidPath)
	if err := srv.Start(); err != ErrDaemonAlreadyRunning {
		t.Fatalf("got %v, want ErrDaemonAlreadyRunning", err)
	}
}

func TestServer_IgnoresStalePid(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "lshd.sock")
	pidPath := filepath.Join(dir, "daemon.pid")

	// A pid very unlikely to be alive.
	if err := os.WriteFile(pidPath, []byte("999999"), 0o600); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	srv := NewServer(newTestOps(t), sockPath, pidPath)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start with stale pid: %v", err)
	}
	_ = srv.Stop()
}
