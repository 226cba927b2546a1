package orchestrator

import (
	"context"

	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
)

// Start starts the server's container.
func (o *Orchestrator) Start(ctx context.Context, t *Task) error {
	id, err := requireContainer(t.Server)
	if err != nil {
		return err
	}

	if _, err := o.rt.Inspect(ctx, id); err != nil {
		if runtime.IsNotFound(err) {
			return errors.ContainerNotFound()
		}
		return errors.ContainerFailed("inspect", err)
	}

	if err := o.rt.Start(ctx, id); err != nil && !runtime.IsAlreadyInState(err) {
		return errors.ContainerFailed("start", err)
	}
	o.logf(ctx, t, "started container %s", id)
	return o.setStatus(ctx, t.Server, store.ServerRunning)
}

// Stop stops the server's container within the stop grace period. A
// container that is already stopped counts as stopped.
func (o *Orchestrator) Stop(ctx context.Context, t *Task) error {
	id, err := requireContainer(t.Server)
	if err != nil {
		return err
	}

	if err := o.rt.Stop(ctx, id, o.cfg.Runtime.StopGrace.Duration); err != nil {
		switch {
		case runtime.IsAlreadyInState(err):
			o.logf(ctx, t, "container %s was already stopped", id)
		case runtime.IsNotFound(err):
			return errors.ContainerNotFound()
		default:
			return errors.ContainerFailed("stop", err)
		}
	} else {
		o.logf(ctx, t, "stopped container %s", id)
	}
	return o.setStatus(ctx, t.Server, store.ServerStopped)
}

// Restart restarts the server's container within the stop grace period.
func (o *Orchestrator) Restart(ctx context.Context, t *Task) error {
	id, err := requireContainer(t.Server)
	if err != nil {
		return err
	}

	if err := o.rt.Restart(ctx, id, o.cfg.Runtime.StopGrace.Duration); err != nil {
		if runtime.IsNotFound(err) {
			return errors.ContainerNotFound()
		}
		return errors.ContainerFailed("restart", err)
	}
	o.logf(ctx, t, "restarted container %s", id)
	return o.setStatus(ctx, t.Server, store.ServerRunning)
}

// Delete tears the server down. Container and directory cleanup is best
// effort; only removing the server row can fail the job. Removing the row
// removes the server's jobs, this one included.
func (o *Orchestrator) Delete(ctx context.Context, t *Task) error {
	srv := t.Server

	ref := srv.ContainerID
	if ref == "" {
		// A failed create may have left a container under the server's name.
		ref = o.cfg.ContainerName(srv.ID)
	}

	if err := o.rt.Stop(ctx, ref, o.cfg.Runtime.DeleteGrace.Duration); err != nil && !runtime.IsNotFound(err) {
		logging.Debug("stop during delete", "server", srv.ID, "container", ref, "error", err)
	}
	if err := o.rt.Remove(ctx, ref, true); err != nil && !runtime.IsNotFound(err) {
		logging.Warn("failed to remove container during delete", "server", srv.ID, "container", ref, "error", err)
	}

	o.removeDir(srv.ID, "data", o.cfg.ServerDataDir)
	o.removeDir(srv.ID, "script", o.cfg.ServerScriptDir)

	return o.store.DeleteServer(ctx, srv.ID)
}

func (o *Orchestrator) removeDir(serverID, kind string, resolve func(string) (string, error)) {
	dir, err := resolve(serverID)
	if err != nil {
		logging.Warn("cannot resolve directory for removal", "server", serverID, "kind", kind, "error", err)
		return
	}
	if err := o.fs.RemoveAll(dir); err != nil {
		logging.Warn("failed to remove directory", "server", serverID, "kind", kind, "path", dir, "error", err)
	}
}
