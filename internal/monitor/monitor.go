// Package monitor watches recorded servers for drift from their
// containers while the worker pool runs.
package monitor

import (
	"context"
	"time"

	"github.com/firefly-engineering/hearth/internal/audit"
	"github.com/firefly-engineering/hearth/internal/health"
	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
)

// Enqueuer queues repair jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, serverID string, typ store.JobType) (*store.Job, error)
}

// Monitor periodically compares the ledger with the runtime.
type Monitor struct {
	interval time.Duration
	ledger   health.Ledger
	rt       runtime.Runtime
	repairer Enqueuer
	auditLog *audit.Logger

	last map[string]health.Status
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRepair queues a START for a server recorded RUNNING whose container
// is found stopped. Each drift episode is repaired once.
func WithRepair(jobs Enqueuer) Option {
	return func(m *Monitor) {
		m.repairer = jobs
	}
}

// WithAuditLogger records drift transitions on the server's trail.
func WithAuditLogger(logger *audit.Logger) Option {
	return func(m *Monitor) {
		m.auditLog = logger
	}
}

// New creates a Monitor.
func New(interval time.Duration, ledger health.Ledger, rt runtime.Runtime, opts ...Option) *Monitor {
	m := &Monitor{
		interval: interval,
		ledger:   ledger,
		rt:       rt,
		last:     make(map[string]health.Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run checks immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	logging.Debug("starting drift monitor", "interval", m.interval, "repair", m.repairer != nil)

	m.checkAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("drift monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll runs one pass and returns its results. Only changes since the
// previous pass are logged.
func (m *Monitor) checkAll(ctx context.Context) []health.Result {
	results, err := health.Check(ctx, m.ledger, m.rt)
	if err != nil {
		logging.Warn("drift monitor check failed", "error", err)
		return nil
	}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.ServerID] = true
		prev, known := m.last[r.ServerID]
		m.last[r.ServerID] = r.Status
		if known && prev == r.Status {
			continue
		}
		m.transition(ctx, r, prev)
	}
	for id := range m.last {
		if !seen[id] {
			delete(m.last, id)
		}
	}
	return results
}

func (m *Monitor) transition(ctx context.Context, r health.Result, prev health.Status) {
	log := logging.With("component", "monitor", "server", r.ServerID, "status", r.Status)

	switch r.Status {
	case health.StatusHealthy, health.StatusPending:
		if prev == health.StatusDrift || prev == health.StatusMissing {
			log.Info("server back in sync")
		}
		return
	case health.StatusOrphan:
		log.Warn("container labelled for an unknown server", "container", r.ContainerID)
		return
	}

	log.Warn("server drifted from its container", "recorded", r.Recorded, "container", r.Container, "detail", r.Detail)
	if m.auditLog != nil {
		details := string(r.Status)
		if r.Detail != "" {
			details += ": " + r.Detail
		}
		if err := m.auditLog.Log(audit.Event{Type: audit.EventDrift, Server: r.ServerID, Details: details}); err != nil {
			log.Warn("failed to write audit event", "error", err)
		}
	}

	if m.repairer == nil || r.Status != health.StatusDrift ||
		r.Recorded != store.ServerRunning || r.Container != runtime.StatusStopped {
		return
	}
	job, err := m.repairer.Enqueue(ctx, r.ServerID, store.JobStart)
	if err != nil {
		log.Error("failed to queue repair", "error", err)
		return
	}
	log.Info("queued repair", "job", job.ID)
}
