// Package testutil provides test utilities for integration tests
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/firefly-engineering/hearth/internal/app"
	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/retry"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
	"github.com/firefly-engineering/hearth/internal/system"
	"github.com/firefly-engineering/hearth/internal/worker"
)

// Test port window. Small enough to exhaust in a test.
const (
	PortFrom = 32000
	PortTo   = 32019
)

// TestEnv holds the test environment
type TestEnv struct {
	T          *testing.T
	TmpDir     string
	ConfigPath string
	Config     *config.HostConfig
	Runtime    *runtime.MockRuntime
	Probe      *system.MockProbe
	App        *app.App
}

// NewTestEnv creates a test environment backed by a real SQLite ledger in
// a temp directory, a mock runtime, and a mock listener probe.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()
	stateDir := filepath.Join(tmpDir, "state")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		t.Fatalf("Failed to create state directory: %v", err)
	}

	cfg := config.Default(stateDir)
	cfg.Ports = config.PortRange{From: PortFrom, To: PortTo}
	cfg.Worker.Concurrency = 4
	cfg.Worker.PollInterval = config.Duration{Duration: 10 * time.Millisecond}
	cfg.Runtime.StopGrace = config.Duration{Duration: time.Second}
	cfg.Runtime.DeleteGrace = config.Duration{Duration: time.Second}

	// Round-trip through the file so tests exercise the loader.
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		t.Fatalf("Failed to encode config: %v", err)
	}
	configPath := filepath.Join(tmpDir, config.DefaultConfigFile)
	if err := os.WriteFile(configPath, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	mockRuntime := runtime.NewMockRuntime()
	probe := system.NewMockProbe()

	testApp, err := app.New(context.Background(),
		app.WithConfig(loaded),
		app.WithRuntime(mockRuntime),
		app.WithProbe(probe),
		app.WithPullRetry(retry.Config{MaxAttempts: 1}),
	)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	t.Cleanup(func() { testApp.Close() })

	return &TestEnv{
		T:          t,
		TmpDir:     tmpDir,
		ConfigPath: configPath,
		Config:     loaded,
		Runtime:    mockRuntime,
		Probe:      probe,
		App:        testApp,
	}
}

// AddServer inserts a server in CREATING state for game.
func (e *TestEnv) AddServer(game string) *store.Server {
	e.T.Helper()

	srv := &store.Server{
		Name:      game + "-test",
		GameKey:   game,
		CreatedBy: "testutil",
	}
	if err := e.App.Store.CreateServer(context.Background(), srv); err != nil {
		e.T.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

// AddCreatedServer inserts a server whose container already exists in the
// mock runtime with the given status.
func (e *TestEnv) AddCreatedServer(game string, status runtime.ContainerStatus) *store.Server {
	e.T.Helper()

	srv := e.AddServer(game)
	id := e.Runtime.AddContainer(e.Config.ContainerName(srv.ID), status)

	serverStatus := store.ServerStopped
	if status == runtime.StatusRunning {
		serverStatus = store.ServerRunning
	}
	if err := e.App.Store.SetServerContainer(context.Background(), srv.ID, id, nil, serverStatus); err != nil {
		e.T.Fatalf("Failed to record container: %v", err)
	}
	srv.ContainerID = id
	srv.Status = serverStatus
	return srv
}

// Enqueue records a job and publishes it.
func (e *TestEnv) Enqueue(serverID string, typ store.JobType) *store.Job {
	e.T.Helper()

	job, err := e.App.Jobs.Enqueue(context.Background(), serverID, typ)
	if err != nil {
		e.T.Fatalf("Failed to enqueue %s: %v", typ, err)
	}
	return job
}

// Pool returns a worker pool built from the environment's config.
func (e *TestEnv) Pool(opts ...worker.Option) *worker.Pool {
	return e.App.NewPool(opts...)
}

// Drain runs every ready job to completion and returns how many ran.
func (e *TestEnv) Drain() int {
	e.T.Helper()

	n, err := e.Pool().Drain(context.Background())
	if err != nil {
		e.T.Fatalf("Failed to drain queue: %v", err)
	}
	return n
}

// Job reloads a job. It fails the test if the job does not exist.
func (e *TestEnv) Job(id string) *store.Job {
	e.T.Helper()

	job, err := e.App.Store.GetJob(context.Background(), id)
	if err != nil {
		e.T.Fatalf("Failed to load job %s: %v", id, err)
	}
	return job
}

// Server reloads a server, returning nil when it no longer exists.
func (e *TestEnv) Server(id string) *store.Server {
	e.T.Helper()

	srv, err := e.App.Store.GetServer(context.Background(), id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		e.T.Fatalf("Failed to load server %s: %v", id, err)
	}
	return srv
}

// ServerDataDir returns the host data directory of a server.
func (e *TestEnv) ServerDataDir(id string) string {
	e.T.Helper()

	dir, err := e.Config.ServerDataDir(id)
	if err != nil {
		e.T.Fatalf("Failed to resolve data dir: %v", err)
	}
	return dir
}
