package orchestrator

import (
	"context"
	"path/filepath"

	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/games"
	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/retry"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
)

// PlaceholderScript runs in a custom server until a script is configured.
const PlaceholderScript = `#!/bin/bash
set -euo pipefail
echo "hearth: no startup script configured for this server, waiting for one"
exec sleep infinity
`

// Progress checkpoints reported by Create.
const (
	ProgressDataDir   = 10
	ProgressImage     = 30
	ProgressPorts     = 60
	ProgressContainer = 90
	ProgressDone      = 100
)

// Create provisions the server's container: data directory, image,
// host ports, optional startup script, then the container itself. The
// container is left stopped.
func (o *Orchestrator) Create(ctx context.Context, t *Task) (err error) {
	srv, game := t.Server, t.Game

	if srv.ContainerID != "" {
		o.logf(ctx, t, "container %s already exists, nothing to do", srv.ContainerID)
		return nil
	}

	undo := &saga{}
	defer func() {
		if err != nil && o.cfg.CompensateFailedCreate {
			undo.unwind(context.WithoutCancel(ctx))
		}
	}()

	dataDir, err := o.cfg.ServerDataDir(srv.ID)
	if err != nil {
		return errors.ValidationError(err.Error())
	}
	existed := o.fs.Exists(dataDir)
	if err := o.fs.MkdirAll(dataDir, 0755); err != nil {
		return errors.Wrap(errors.ExitGeneralError, "failed to create data directory", err)
	}
	if !existed {
		undo.push("remove data directory", func(ctx context.Context) error {
			return o.fs.RemoveAll(dataDir)
		})
	}
	o.progress(ctx, t, ProgressDataDir)

	if err := o.pull(ctx, t, game.Image); err != nil {
		return err
	}
	o.logf(ctx, t, "pulled image %s", game.Image)
	o.progress(ctx, t, ProgressImage)

	specs, env, script, err := o.adapterInputs(ctx, srv, game)
	if err != nil {
		return err
	}

	undo.push("release port reservations", func(ctx context.Context) error {
		return o.store.ReleaseReservations(ctx, srv.ID, nil)
	})
	mappings, err := o.allocatePorts(ctx, srv.ID, specs)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		o.logf(ctx, t, "port %d/%s -> host %d", m.ContainerPort, m.Protocol, m.HostPort)
	}
	o.progress(ctx, t, ProgressPorts)

	var mounts []runtime.Mount
	if game.DataPath != "" {
		mounts = append(mounts, runtime.Mount{HostPath: dataDir, ContainerPath: game.DataPath})
	}
	if game.IsCustom() {
		m, err := o.writeScript(srv.ID, script, undo)
		if err != nil {
			return err
		}
		mounts = append(mounts, m)
	}

	name := o.cfg.ContainerName(srv.ID)
	if err := o.removeLeftover(ctx, t, name); err != nil {
		return err
	}

	bindings := make([]runtime.PortBinding, len(mappings))
	for i, m := range mappings {
		bindings[i] = runtime.PortBinding{ContainerPort: m.ContainerPort, HostPort: m.HostPort, Protocol: m.Protocol}
	}

	containerID, err := o.rt.Create(ctx, runtime.CreateOptions{
		Name:            name,
		Image:           game.Image,
		Cmd:             game.Cmd,
		Env:             env,
		Ports:           bindings,
		Mounts:          mounts,
		MemoryMiB:       srv.MemoryMiB,
		CPUShares:       srv.CPUShares,
		RestartPolicy:   o.cfg.Runtime.RestartPolicy,
		NoNewPrivileges: true,
		Labels: map[string]string{
			LabelServer: srv.ID,
			LabelGame:   game.Key,
		},
	})
	if err != nil {
		return errors.ContainerFailed("create", err)
	}
	undo.push("remove container", func(ctx context.Context) error {
		return o.rt.Remove(ctx, containerID, true)
	})
	o.logf(ctx, t, "created container %s", containerID)
	o.progress(ctx, t, ProgressContainer)

	if err := o.store.SetServerContainer(ctx, srv.ID, containerID, mappings, store.ServerStopped); err != nil {
		return err
	}
	srv.ContainerID = containerID
	srv.Ports = mappings
	srv.Status = store.ServerStopped

	keep := make([]int, len(mappings))
	for i, m := range mappings {
		keep[i] = m.HostPort
	}
	if err := o.store.ReleaseReservations(ctx, srv.ID, keep); err != nil {
		logging.Warn("failed to release spare port reservations", "server", srv.ID, "error", err)
	}

	o.progress(ctx, t, ProgressDone)
	return nil
}

// pull fetches the image, mapping layer progress onto the 10..30 band.
func (o *Orchestrator) pull(ctx context.Context, t *Task, image string) error {
	last := ProgressDataDir
	onProgress := func(p runtime.PullProgress) {
		if p.Total <= 0 || p.Current > p.Total {
			return
		}
		pct := ProgressDataDir + int(int64(ProgressImage-ProgressDataDir)*p.Current/p.Total)
		if pct > last && pct < ProgressImage {
			last = pct
			o.progress(ctx, t, pct)
		}
	}

	err := retry.Do(ctx, o.pullRetry, nil, func() error {
		return o.rt.PullImage(ctx, image, onProgress)
	})
	if err != nil {
		return errors.ImagePullFailed(image, err)
	}
	return nil
}

// adapterInputs returns the ports to publish, the container environment,
// and for custom servers the script to mount.
func (o *Orchestrator) adapterInputs(ctx context.Context, srv *store.Server, game *games.Descriptor) ([]store.PortSpec, map[string]string, string, error) {
	env := make(map[string]string, len(game.Env))
	for k, v := range game.Env {
		env[k] = v
	}

	if !game.IsCustom() {
		return game.Ports, env, "", nil
	}

	cs, err := o.store.GetCustomScript(ctx, srv.ID)
	if err != nil {
		return nil, nil, "", err
	}

	spec, ok := game.DefaultPort()
	content := PlaceholderScript
	if cs != nil {
		content = cs.Content
		if len(cs.Ports) > 0 {
			spec, ok = cs.Ports[0], true
		}
		for k, v := range cs.Env {
			env[k] = v
		}
	}
	if !ok {
		return nil, nil, "", errors.ValidationError("custom server has no port to publish")
	}
	return []store.PortSpec{spec}, env, content, nil
}

// allocatePorts assigns a host port to every spec, threading the set of
// ports already chosen in this job through each call.
func (o *Orchestrator) allocatePorts(ctx context.Context, serverID string, specs []store.PortSpec) ([]store.PortMapping, error) {
	reserved := make(map[int]bool, len(specs))
	mappings := make([]store.PortMapping, 0, len(specs))
	for _, spec := range specs {
		hostPort, err := o.ports.Allocate(ctx, serverID, spec.ContainerPort, reserved)
		if err != nil {
			return nil, err
		}
		reserved[hostPort] = true
		proto := spec.Protocol
		if proto == "" {
			proto = "tcp"
		}
		mappings = append(mappings, store.PortMapping{
			ContainerPort: spec.ContainerPort,
			HostPort:      hostPort,
			Protocol:      proto,
		})
	}
	return mappings, nil
}

// writeScript stores the startup script outside the data directory and
// returns its read-only mount.
func (o *Orchestrator) writeScript(serverID, content string, undo *saga) (runtime.Mount, error) {
	dir, err := o.cfg.ServerScriptDir(serverID)
	if err != nil {
		return runtime.Mount{}, errors.ValidationError(err.Error())
	}
	if err := o.fs.MkdirAll(dir, 0755); err != nil {
		return runtime.Mount{}, errors.Wrap(errors.ExitGeneralError, "failed to create script directory", err)
	}
	undo.push("remove script directory", func(ctx context.Context) error {
		return o.fs.RemoveAll(dir)
	})

	path := filepath.Join(dir, filepath.Base(games.ScriptPath))
	if err := o.fs.WriteFile(path, []byte(content), 0755); err != nil {
		return runtime.Mount{}, errors.Wrap(errors.ExitGeneralError, "failed to write startup script", err)
	}
	return runtime.Mount{HostPath: path, ContainerPath: games.ScriptPath, ReadOnly: true}, nil
}

// removeLeftover removes a container carrying the server's name that was
// created by an earlier attempt which failed before recording it.
func (o *Orchestrator) removeLeftover(ctx context.Context, t *Task, name string) error {
	info, err := o.rt.Inspect(ctx, name)
	if err != nil {
		if runtime.IsNotFound(err) {
			return nil
		}
		return errors.ContainerFailed("inspect", err)
	}
	if err := o.rt.Remove(ctx, info.ID, true); err != nil && !runtime.IsNotFound(err) {
		return errors.ContainerFailed("remove", err)
	}
	o.logf(ctx, t, "removed leftover container %s", info.ID)
	return nil
}
