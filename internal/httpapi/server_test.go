package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/executor"
	"github.com/gwicho38/lsh-sub006/internal/ipc"
	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/internal/registry"
	"github.com/gwicho38/lsh-sub006/internal/scheduler"
	"github.com/gwicho38/lsh-sub006/internal/storage"
	"github.com/gwicho38/lsh-sub006/rest/server"
)

func newTestOps(t *testing.T) *ipc.Ops {
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
	return ipc.New(reg, sched, sup, func() {})
}

func startTestHTTPServer(t *testing.T, port int16, token string) string {
	t.Helper()
	opts := Options{
		Options: server.Options{
			Id:         fmt.Sprintf("lshd-http-test-%d", port),
			ListenHost: "127.0.0.1",
			ListenPort: port,
		},
		BearerToken: token,
	}
	srv, err := New(newTestOps(t), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := http.Get(base + pathPrefix + "/status"); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	return base
}

func TestHTTPAPI_GetStatus(t *testing.T) {
	base := startTestHTTPServer(t, 18171, "")

	resp, err := http.Get(base + pathPrefix + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success {
		t.Fatalf("got unsuccessful envelope: %+v", env)
	}
}

func TestHTTPAPI_CreateAndGetJob(t *testing.T) {
	base := startTestHTTPServer(t, 18172, "")

	spec := jobs.JobSpec{ID: "job-http-1", Name: "echo", Command: "echo hi", Schedule: jobs.Schedule{Kind: jobs.ScheduleKindNone}}
	body, _ := json.Marshal(spec)

	req, _ := http.NewRequest(http.MethodPost, base+pathPrefix+"/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	getResp, err := http.Get(base + pathPrefix + "/jobs/job-http-1")
	if err != nil {
		t.Fatalf("GET /jobs/job-http-1: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != 200 {
		t.Fatalf("got status %d, want 200", getResp.StatusCode)
	}
}

func TestHTTPAPI_RequiresBearerToken(t *testing.T) {
	base := startTestHTTPServer(t, 18173, "s3cret")

	resp, err := http.Get(base + pathPrefix + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Fatalf("got status %d, want 401 without a token", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, base+pathPrefix+"/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /status with token: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != 200 {
		t.Fatalf("got status %d, want 200 with a valid token", authed.StatusCode)
	}
}

func TestHTTPAPI_GetJobNotFound(t *testing.T) {
	base := startTestHTTPServer(t, 18174, "")

	resp, err := http.Get(base + pathPrefix + "/jobs/does-not-exist")
	if err != nil {
		t.Fatalf("GET /jobs/does-not-exist: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("got status %d, want 404", resp.StatusCode)
	}
}
