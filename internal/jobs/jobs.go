// Package jobs is the entry point for requesting lifecycle operations.
//
// Enqueue writes a PENDING job row and publishes a message for the worker
// pool, then returns the row without waiting. It does not check that the
// server exists or is in a suitable state; the worker does. A DELETE moves
// an existing server to DELETING as soon as it is queued. Requests are
// not deduplicated, so enqueueing the same operation twice yields two
// independent jobs. Callers learn the outcome by reading the job back.
package jobs

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/hearth/internal/audit"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/queue"
	"github.com/firefly-engineering/hearth/internal/store"
)

// Service enqueues jobs.
type Service struct {
	store    *store.Store
	queue    *queue.Queue
	auditLog *audit.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAuditLogger records an event for every enqueued job.
func WithAuditLogger(logger *audit.Logger) Option {
	return func(s *Service) {
		s.auditLog = logger
	}
}

// NewService creates a Service.
func NewService(st *store.Store, q *queue.Queue, opts ...Option) *Service {
	s := &Service{store: st, queue: q}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue records a job of type typ for serverID and hands it to the
// worker pool.
func (s *Service) Enqueue(ctx context.Context, serverID string, typ store.JobType) (*store.Job, error) {
	if !typ.Valid() {
		return nil, errors.ValidationError(fmt.Sprintf("invalid job type %q", typ))
	}
	if serverID == "" {
		return nil, errors.ValidationError("server id is required")
	}

	job, err := s.store.CreateJob(ctx, serverID, typ)
	if err != nil {
		return nil, err
	}

	msg := &queue.Message{ServerID: serverID, JobID: job.ID, Type: typ}
	if err := s.queue.Publish(ctx, msg); err != nil {
		// Nothing will ever pick the row up, so close it out.
		if ferr := s.store.MarkJobFailed(ctx, job.ID, err.Error()); ferr != nil {
			logging.Error("failed to close unpublished job", "job", job.ID, "error", ferr)
		}
		return nil, err
	}

	if typ == store.JobDelete {
		if err := s.store.SetServerStatus(ctx, serverID, store.ServerDeleting); err != nil && !errors.IsNotFound(err) {
			logging.Warn("failed to mark server deleting", "server", serverID, "job", job.ID, "error", err)
		}
	}

	logging.Debug("job enqueued", "job", job.ID, "server", serverID, "type", typ, "message", msg.ID)
	if s.auditLog != nil {
		if err := s.auditLog.LogJob(audit.EventEnqueued, job, ""); err != nil {
			logging.Warn("failed to write audit event", "job", job.ID, "error", err)
		}
	}
	return job, nil
}

// EnqueueCreate requests container creation for a server.
func (s *Service) EnqueueCreate(ctx context.Context, serverID string) (*store.Job, error) {
	return s.Enqueue(ctx, serverID, store.JobCreate)
}

// EnqueueStart requests that a server's container be started.
func (s *Service) EnqueueStart(ctx context.Context, serverID string) (*store.Job, error) {
	return s.Enqueue(ctx, serverID, store.JobStart)
}

// EnqueueStop requests that a server's container be stopped.
func (s *Service) EnqueueStop(ctx context.Context, serverID string) (*store.Job, error) {
	return s.Enqueue(ctx, serverID, store.JobStop)
}

// EnqueueRestart requests that a server's container be restarted.
func (s *Service) EnqueueRestart(ctx context.Context, serverID string) (*store.Job, error) {
	return s.Enqueue(ctx, serverID, store.JobRestart)
}

// EnqueueDelete requests that a server be torn down and removed.
func (s *Service) EnqueueDelete(ctx context.Context, serverID string) (*store.Job, error) {
	return s.Enqueue(ctx, serverID, store.JobDelete)
}
