package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-engineering/hearth/internal/app"
	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/retry"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
)

// EnvVar enables the integration tests.
const EnvVar = "HEARTH_INTEGRATION_TESTS"

// GameKey names the test game: busybox httpd serving on port 8080.
const GameKey = "it-httpd"

// Enabled reports whether integration tests were requested.
func Enabled() bool {
	return os.Getenv(EnvVar) == "1"
}

// Harness wires a real App in a temp state directory.
type Harness struct {
	t      *testing.T
	prefix string
	Config *config.HostConfig
	App    *app.App
}

// NewHarness builds the harness or skips the test.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	if !Enabled() {
		t.Skipf("integration tests disabled (set %s=1 to enable)", EnvVar)
	}

	rt, err := runtime.NewDockerRuntime(os.Getenv("DOCKER_HOST"))
	if err != nil {
		t.Skipf("docker runtime not available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rt.List(ctx); err != nil {
		rt.Close()
		t.Skipf("docker not responsive: %v", err)
	}

	stateDir := filepath.Join(t.TempDir(), "state")
	cfg := config.Default(stateDir)
	cfg.ContainerPrefix = "hearth-it-" + uuid.NewString()[:8] + "-"
	cfg.Ports = config.PortRange{From: 40000, To: 40049}
	cfg.Runtime.StopGrace = config.Duration{Duration: 2 * time.Second}
	cfg.Runtime.DeleteGrace = config.Duration{Duration: 2 * time.Second}
	cfg.Runtime.RestartPolicy = "no"
	cfg.Games = []config.GameConfig{{
		Key:   GameKey,
		Name:  "busybox httpd",
		Image: "alpine:3.20",
		Ports: []string{"8080/tcp"},
		Cmd:   []string{"httpd", "-f", "-p", "8080", "-h", "/tmp"},
	}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid harness config: %v", err)
	}

	a, err := app.New(context.Background(),
		app.WithConfig(cfg),
		app.WithRuntime(rt),
		app.WithPullRetry(retry.DefaultConfig()),
	)
	if err != nil {
		rt.Close()
		t.Fatalf("Failed to create app: %v", err)
	}

	h := &Harness{t: t, prefix: cfg.ContainerPrefix, Config: cfg, App: a}
	t.Cleanup(h.Cleanup)
	return h
}

// AddServer records a server for game.
func (h *Harness) AddServer(game string) *store.Server {
	h.t.Helper()

	srv := &store.Server{Name: "it-" + game, GameKey: game, CreatedBy: "integration"}
	if err := h.App.Store.CreateServer(context.Background(), srv); err != nil {
		h.t.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

// Run enqueues one job, drains the queue and returns the finished job.
// A DELETE that succeeded returns nil, its row being gone.
func (h *Harness) Run(serverID string, typ store.JobType) *store.Job {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	job, err := h.App.Jobs.Enqueue(ctx, serverID, typ)
	if err != nil {
		h.t.Fatalf("Failed to enqueue %s: %v", typ, err)
	}
	if _, err := h.App.NewPool().Drain(ctx); err != nil {
		h.t.Fatalf("Failed to drain: %v", err)
	}

	got, err := h.App.Store.GetJob(ctx, job.ID)
	if err != nil {
		if typ == store.JobDelete {
			return nil
		}
		h.t.Fatalf("Failed to reload job %s: %v", job.ID, err)
	}
	return got
}

// Server reloads a server.
func (h *Harness) Server(id string) *store.Server {
	h.t.Helper()
	srv, err := h.App.Store.GetServer(context.Background(), id)
	if err != nil {
		h.t.Fatalf("Failed to load server %s: %v", id, err)
	}
	return srv
}

// WaitForPort dials 127.0.0.1:port until it accepts or timeout passes.
func (h *Harness) WaitForPort(port int, timeout time.Duration) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("port %d not accepting after %v: %w", port, timeout, err)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

// Cleanup force-removes every container carrying the harness prefix and
// closes the App.
func (h *Harness) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	containers, err := h.App.Runtime.List(ctx)
	if err != nil {
		h.t.Logf("Warning: failed to list containers: %v", err)
	}
	for _, c := range containers {
		if !strings.HasPrefix(strings.TrimPrefix(c.Name, "/"), h.prefix) {
			continue
		}
		if err := h.App.Runtime.Remove(ctx, c.ID, true); err != nil {
			h.t.Logf("Warning: failed to remove container %s: %v", c.Name, err)
		}
	}
	h.App.Close()
}
