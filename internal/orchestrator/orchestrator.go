package orchestrator

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/games"
	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/port"
	"github.com/firefly-engineering/hearth/internal/retry"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
	"github.com/firefly-engineering/hearth/internal/system"
)

// Container labels set on every server container.
const (
	LabelServer = "hearth.server"
	LabelGame   = "hearth.game"
)

// Task is one job being executed.
type Task struct {
	Job    *store.Job
	Server *store.Server
	Game   *games.Descriptor
}

// Orchestrator runs lifecycle handlers.
type Orchestrator struct {
	cfg       *config.HostConfig
	store     *store.Store
	rt        runtime.Runtime
	ports     *port.Allocator
	fs        system.FileSystem
	pullRetry retry.Config
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFileSystem replaces the host filesystem.
func WithFileSystem(fs system.FileSystem) Option {
	return func(o *Orchestrator) {
		o.fs = fs
	}
}

// WithPullRetry sets the retry policy for image pulls.
func WithPullRetry(c retry.Config) Option {
	return func(o *Orchestrator) {
		o.pullRetry = c
	}
}

// New creates an Orchestrator.
func New(cfg *config.HostConfig, st *store.Store, rt runtime.Runtime, ports *port.Allocator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     st,
		rt:        rt,
		ports:     ports,
		fs:        system.DefaultFS(),
		pullRetry: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// progress records a checkpoint. A failed write does not fail the job.
func (o *Orchestrator) progress(ctx context.Context, t *Task, pct int) {
	if err := o.store.SetJobProgress(ctx, t.Job.ID, pct); err != nil {
		logging.Warn("failed to record job progress", "job", t.Job.ID, "progress", pct, "error", err)
		return
	}
	t.Job.Progress = pct
}

// logf appends a line to the job's log text.
func (o *Orchestrator) logf(ctx context.Context, t *Task, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if err := o.store.AppendJobLog(ctx, t.Job.ID, line); err != nil {
		logging.Warn("failed to append job log", "job", t.Job.ID, "error", err)
	}
}

func requireContainer(srv *store.Server) (string, error) {
	if srv.ContainerID == "" {
		return "", errors.NoContainer(srv.ID)
	}
	return srv.ContainerID, nil
}

func (o *Orchestrator) setStatus(ctx context.Context, srv *store.Server, status store.ServerStatus) error {
	if err := o.store.SetServerStatus(ctx, srv.ID, status); err != nil {
		return err
	}
	srv.Status = status
	return nil
}
