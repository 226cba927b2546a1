package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/firefly-engineering/hearth/internal/audit"
	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/games"
	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/orchestrator"
	"github.com/firefly-engineering/hearth/internal/queue"
	"github.com/firefly-engineering/hearth/internal/store"
)

// Handler executes one lifecycle operation per job type.
type Handler interface {
	Create(ctx context.Context, t *orchestrator.Task) error
	Start(ctx context.Context, t *orchestrator.Task) error
	Stop(ctx context.Context, t *orchestrator.Task) error
	Restart(ctx context.Context, t *orchestrator.Task) error
	Delete(ctx context.Context, t *orchestrator.Task) error
}

// Pool consumes the work queue.
type Pool struct {
	store   *store.Store
	queue   *queue.Queue
	handler Handler
	catalog *games.Catalog

	concurrency  int
	pollInterval time.Duration
	visibility   time.Duration
	consumer     string
	auditLog     *audit.Logger

	locks    *serverLocks
	inflight atomic.Int64
	freed    chan struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// WithConcurrency sets the number of jobs run at once.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPollInterval sets how often an idle pool checks the queue.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithVisibilityTimeout sets how long a claim may be held before the
// message is considered abandoned and delivered again. Zero disables
// recovery.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.visibility = d
	}
}

// WithConsumerName names this pool in queue claims.
func WithConsumerName(name string) Option {
	return func(p *Pool) {
		p.consumer = name
	}
}

// WithAuditLogger records job events to logger.
func WithAuditLogger(logger *audit.Logger) Option {
	return func(p *Pool) {
		p.auditLog = logger
	}
}

// New creates a Pool.
func New(st *store.Store, q *queue.Queue, handler Handler, catalog *games.Catalog, opts ...Option) *Pool {
	host, _ := os.Hostname()
	p := &Pool{
		store:        st,
		queue:        q,
		handler:      handler,
		catalog:      catalog,
		concurrency:  config.DefaultConcurrency,
		pollInterval: config.DefaultPollInterval,
		visibility:   config.DefaultVisibility,
		consumer:     fmt.Sprintf("%s-%d", host, os.Getpid()),
		locks:        newServerLocks(),
		freed:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run claims and executes jobs until ctx is cancelled, then waits for
// jobs in flight and returns ctx.Err().
func (p *Pool) Run(ctx context.Context) error {
	logging.Info("worker pool starting",
		"queue", p.queue.Name(),
		"consumer", p.consumer,
		"concurrency", p.concurrency)

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	p.recoverStale(ctx)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var recoverC <-chan time.Time
	if p.visibility > 0 {
		recoverTicker := time.NewTicker(p.visibility / 2)
		defer recoverTicker.Stop()
		recoverC = recoverTicker.C
	}

	for {
		p.fill(ctx, &g)

		select {
		case <-ctx.Done():
			logging.Info("worker pool stopping, waiting for jobs in flight", "inflight", p.inflight.Load())
			g.Wait()
			return ctx.Err()
		case <-ticker.C:
		case <-p.queue.Notify():
		case <-p.freed:
		case <-recoverC:
			p.recoverStale(ctx)
		}
	}
}

// fill claims messages while slots are free. Jobs run detached from ctx
// so cancellation stops claiming but never interrupts a job.
func (p *Pool) fill(ctx context.Context, g *errgroup.Group) {
	jobCtx := context.WithoutCancel(ctx)

	for ctx.Err() == nil && p.inflight.Load() < int64(p.concurrency) {
		d, err := p.queue.Claim(ctx, p.consumer)
		if err != nil {
			if ctx.Err() == nil {
				logging.Error("failed to claim message", "error", err)
			}
			return
		}
		if d == nil {
			return
		}

		wait, release := p.locks.acquire(d.ServerID)
		p.inflight.Add(1)
		g.Go(func() error {
			defer p.signalFreed()
			defer p.inflight.Add(-1)
			defer release()
			if wait != nil {
				<-wait
			}
			p.handle(jobCtx, d)
			return nil
		})
	}
}

func (p *Pool) signalFreed() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

func (p *Pool) recoverStale(ctx context.Context) {
	if p.visibility <= 0 {
		return
	}
	n, err := p.queue.RecoverStale(ctx, p.visibility)
	if err != nil {
		logging.Warn("failed to recover stale claims", "error", err)
		return
	}
	if n > 0 {
		logging.Warn("redelivering abandoned messages", "count", n)
	}
}

// Drain processes ready messages one at a time until the queue has none
// available, returning how many were handled.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		d, err := p.queue.Claim(ctx, p.consumer)
		if err != nil {
			return n, err
		}
		if d == nil {
			return n, nil
		}
		p.handle(ctx, d)
		n++
	}
}

// handle processes a delivery and settles it with the queue.
func (p *Pool) handle(ctx context.Context, d *queue.Delivery) {
	log := logging.With(
		"component", "worker",
		"job", d.JobID,
		"server", d.ServerID,
		"type", d.Type,
		"attempt", d.Attempts)

	err := p.process(ctx, log, &d.Message)
	if err == nil {
		if cerr := p.queue.Complete(ctx, d); cerr != nil {
			log.Error("failed to acknowledge message", "error", cerr)
		}
		return
	}

	redelivered, ferr := p.queue.Fail(ctx, d, err)
	if ferr != nil {
		log.Error("failed to record message failure", "error", ferr)
		return
	}
	if redelivered {
		log.Info("message will be redelivered")
	}
}

// process runs one job through the state machine. The returned error is
// the handler's, passed on to the queue.
func (p *Pool) process(ctx context.Context, log *slog.Logger, msg *queue.Message) error {
	job, err := p.store.GetJob(ctx, msg.JobID)
	if err != nil {
		if errors.IsNotFound(err) {
			// The server and its jobs were deleted before this ran.
			log.Info("job no longer exists, dropping message")
			return nil
		}
		return err
	}
	if job.Status.Terminal() {
		log.Info("job already finished, skipping redelivery", "status", job.Status)
		p.audit(audit.EventSkipped, job, string(job.Status))
		return nil
	}

	srv, err := p.store.GetServer(ctx, job.ServerID)
	if err != nil {
		if errors.IsNotFound(err) {
			return p.fail(ctx, log, job, nil, err)
		}
		return err
	}

	game, err := p.catalog.Get(srv.GameKey)
	if err != nil {
		return p.fail(ctx, log, job, srv, err)
	}

	if err := p.store.MarkJobRunning(ctx, job.ID); err != nil {
		return err
	}
	job.Status = store.JobRunning
	log.Info("job running")
	p.audit(audit.EventStarted, job, "")

	if job.Type == store.JobDelete {
		if err := p.store.SetServerStatus(ctx, srv.ID, store.ServerDeleting); err != nil {
			return p.fail(ctx, log, job, srv, err)
		}
		srv.Status = store.ServerDeleting
	}

	task := &orchestrator.Task{Job: job, Server: srv, Game: game}
	if err := p.dispatch(ctx, task); err != nil {
		return p.fail(ctx, log, job, srv, err)
	}

	if err := p.store.MarkJobSucceeded(ctx, job.ID); err != nil {
		// A successful DELETE removes its own job row.
		if !(job.Type == store.JobDelete && errors.IsNotFound(err)) {
			return err
		}
	}
	log.Info("job succeeded")
	p.audit(audit.EventSucceeded, job, "")
	if job.Type == store.JobDelete {
		p.audit(audit.EventCleanup, job, "server, jobs and data directory removed")
	}
	return nil
}

// dispatch routes a task to the handler for its job type.
func (p *Pool) dispatch(ctx context.Context, t *orchestrator.Task) error {
	switch t.Job.Type {
	case store.JobCreate:
		return p.handler.Create(ctx, t)
	case store.JobStart:
		return p.handler.Start(ctx, t)
	case store.JobStop:
		return p.handler.Stop(ctx, t)
	case store.JobRestart:
		return p.handler.Restart(ctx, t)
	case store.JobDelete:
		return p.handler.Delete(ctx, t)
	default:
		return errors.ValidationError(fmt.Sprintf("unknown job type %q", t.Job.Type))
	}
}

// fail records cause on the job, moves a failed CREATE's server to ERROR,
// and returns cause.
func (p *Pool) fail(ctx context.Context, log *slog.Logger, job *store.Job, srv *store.Server, cause error) error {
	log.Warn("job failed", "error", cause)

	if err := p.store.MarkJobFailed(ctx, job.ID, cause.Error()); err != nil {
		log.Error("failed to record job failure", "error", err)
	}
	if job.Type == store.JobCreate && srv != nil {
		if err := p.store.SetServerStatus(ctx, srv.ID, store.ServerError); err != nil {
			log.Error("failed to mark server as errored", "error", err)
		}
	}
	p.audit(audit.EventFailed, job, cause.Error())
	return cause
}

func (p *Pool) audit(eventType audit.EventType, job *store.Job, details string) {
	if p.auditLog == nil {
		return
	}
	if err := p.auditLog.LogJob(eventType, job, details); err != nil {
		logging.Warn("failed to write audit event", "job", job.ID, "error", err)
	}
}
