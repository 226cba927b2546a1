// Package app wires hearth's components together. It allows dependency
// injection for testing.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/firefly-engineering/hearth/internal/audit"
	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/database"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/games"
	"github.com/firefly-engineering/hearth/internal/jobs"
	"github.com/firefly-engineering/hearth/internal/orchestrator"
	"github.com/firefly-engineering/hearth/internal/port"
	"github.com/firefly-engineering/hearth/internal/queue"
	"github.com/firefly-engineering/hearth/internal/retry"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
	"github.com/firefly-engineering/hearth/internal/system"
	"github.com/firefly-engineering/hearth/internal/worker"
)

// App holds the application dependencies
type App struct {
	Config  *config.HostConfig
	DB      *sql.DB
	Store   *store.Store
	Queue   *queue.Queue
	Runtime runtime.Runtime
	Probe   system.ListenerProbe
	FS      system.FileSystem
	Catalog *games.Catalog
	Audit   *audit.Logger

	Ports        *port.Allocator
	Orchestrator *orchestrator.Orchestrator
	Jobs         *jobs.Service

	pullRetry *retry.Config
	ownsDB    bool
}

// Option is a function that configures the App
type Option func(*App)

// WithConfig sets the host config
func WithConfig(cfg *config.HostConfig) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithDB uses an already open database instead of opening Config.Database
func WithDB(db *sql.DB) Option {
	return func(a *App) {
		a.DB = db
	}
}

// WithRuntime sets a custom runtime
func WithRuntime(r runtime.Runtime) Option {
	return func(a *App) {
		a.Runtime = r
	}
}

// WithProbe sets the host listener probe
func WithProbe(p system.ListenerProbe) Option {
	return func(a *App) {
		a.Probe = p
	}
}

// WithFileSystem sets the filesystem used for server directories
func WithFileSystem(fs system.FileSystem) Option {
	return func(a *App) {
		a.FS = fs
	}
}

// WithPullRetry overrides the image pull retry policy
func WithPullRetry(c retry.Config) Option {
	return func(a *App) {
		a.pullRetry = &c
	}
}

// New builds an App. Unset dependencies are created from the config: the
// SQLite database, the Docker runtime, and the ss-backed listener probe.
func New(ctx context.Context, opts ...Option) (*App, error) {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}

	if a.Config == nil {
		cfg, err := config.Load(config.DefaultPath())
		if err != nil {
			return nil, errors.ConfigError("failed to load config", err)
		}
		a.Config = cfg
	}
	cfg := a.Config

	if a.DB == nil {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, errors.LedgerError("open", err)
		}
		a.DB = db
		a.ownsDB = true
	}

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	st, err := store.New(ctx, a.DB)
	if err != nil {
		return errors.LedgerError("migrate", err)
	}
	a.Store = st

	q, err := queue.New(ctx, a.DB, config.QueueName,
		queue.WithMaxAttempts(cfg.Queue.MaxAttempts),
		queue.WithRetention(cfg.Queue.KeepCompleted, cfg.Queue.KeepFailed),
	)
	if err != nil {
		return errors.LedgerError("migrate", err)
	}
	a.Queue = q

	catalog, err := games.NewCatalog(cfg.Games)
	if err != nil {
		return err
	}
	a.Catalog = catalog

	if a.Runtime == nil {
		rt, err := runtime.NewDockerRuntime(cfg.Runtime.DockerHost)
		if err != nil {
			return errors.ContainerFailed("connect", err)
		}
		a.Runtime = rt
	}
	if a.Probe == nil {
		a.Probe = system.NewSocketProbe(system.DefaultExecutor())
	}
	if a.FS == nil {
		a.FS = system.DefaultFS()
	}
	a.Audit = audit.NewLogger(cfg.AuditDir())

	a.Ports = port.New(cfg.Ports, a.Store, a.Runtime, a.Probe)

	orchOpts := []orchestrator.Option{orchestrator.WithFileSystem(a.FS)}
	if a.pullRetry != nil {
		orchOpts = append(orchOpts, orchestrator.WithPullRetry(*a.pullRetry))
	}
	a.Orchestrator = orchestrator.New(cfg, a.Store, a.Runtime, a.Ports, orchOpts...)

	a.Jobs = jobs.NewService(a.Store, a.Queue, jobs.WithAuditLogger(a.Audit))
	return nil
}

// NewPool returns a worker pool configured from the host config. opts
// are applied after the config-derived options.
func (a *App) NewPool(opts ...worker.Option) *worker.Pool {
	w := a.Config.Worker
	base := []worker.Option{
		worker.WithConcurrency(w.Concurrency),
		worker.WithPollInterval(w.PollInterval.Duration),
		worker.WithVisibilityTimeout(w.VisibilityTimeout.Duration),
		worker.WithAuditLogger(a.Audit),
	}
	return worker.New(a.Store, a.Queue, a.Orchestrator, a.Catalog, append(base, opts...)...)
}

// Close releases the database if the App opened it, and the runtime
// client if it holds one.
func (a *App) Close() error {
	var firstErr error
	if c, ok := a.Runtime.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			firstErr = err
		}
	}
	if a.ownsDB && a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database: %w", err)
		}
	}
	return firstErr
}
