package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the part of the Engine client the runtime uses.
type dockerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	Close() error
}

// DockerRuntime implements Runtime against the Docker Engine API.
type DockerRuntime struct {
	api dockerAPI
}

// NewDockerRuntime connects to the daemon at host, or the one named by
// DOCKER_HOST when host is empty.
func NewDockerRuntime(host string) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{api: cli}, nil
}

// Name returns the runtime identifier
func (r *DockerRuntime) Name() string {
	return "docker"
}

// Close releases the client's connections.
func (r *DockerRuntime) Close() error {
	return r.api.Close()
}

// PullImage pulls image and streams its progress messages to fn. Errors
// reported inside the stream fail the pull.
func (r *DockerRuntime) PullImage(ctx context.Context, ref string, fn func(PullProgress)) error {
	rc, err := r.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return translate(err)
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read pull progress: %w", err)
		}
		if msg.Error != nil {
			return msg.Error
		}
		if fn != nil {
			p := PullProgress{Status: msg.Status}
			if msg.Progress != nil {
				p.Current = msg.Progress.Current
				p.Total = msg.Progress.Total
			}
			fn(p)
		}
	}
}

// Create creates a container from opts without starting it.
func (r *DockerRuntime) Create(ctx context.Context, opts CreateOptions) (string, error) {
	cfg, hostCfg, err := containerSpec(opts)
	if err != nil {
		return "", err
	}
	resp, err := r.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", translate(err)
	}
	return resp.ID, nil
}

// Start starts an existing container
func (r *DockerRuntime) Start(ctx context.Context, id string) error {
	return translate(r.api.ContainerStart(ctx, id, container.StartOptions{}))
}

// Stop stops a running container
func (r *DockerRuntime) Stop(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	return translate(r.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}))
}

// Restart restarts a container
func (r *DockerRuntime) Restart(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	return translate(r.api.ContainerRestart(ctx, id, container.StopOptions{Timeout: &secs}))
}

// Remove removes a container
func (r *DockerRuntime) Remove(ctx context.Context, id string, force bool) error {
	return translate(r.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}))
}

// Inspect returns detailed status of a container
func (r *DockerRuntime) Inspect(ctx context.Context, id string) (*ContainerInfo, error) {
	resp, err := r.api.ContainerInspect(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return infoFromInspect(resp), nil
}

// List returns all containers, including stopped ones. The daemon only
// reports published ports for running containers, so the rest are
// inspected for their configured bindings.
func (r *DockerRuntime) List(ctx context.Context) ([]*ContainerInfo, error) {
	summaries, err := r.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, translate(err)
	}

	infos := make([]*ContainerInfo, 0, len(summaries))
	for _, c := range summaries {
		if c.State != "running" {
			resp, err := r.api.ContainerInspect(ctx, c.ID)
			if err != nil {
				if errdefs.IsNotFound(err) {
					continue // removed since listing
				}
				return nil, translate(err)
			}
			infos = append(infos, infoFromInspect(resp))
			continue
		}

		info := &ContainerInfo{
			ID:     c.ID,
			Image:  c.Image,
			Status: StatusRunning,
			Labels: c.Labels,
		}
		if len(c.Names) > 0 {
			info.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		for _, p := range c.Ports {
			if p.PublicPort == 0 {
				continue
			}
			info.Ports = append(info.Ports, PortBinding{
				ContainerPort: int(p.PrivatePort),
				HostPort:      int(p.PublicPort),
				Protocol:      p.Type,
			})
		}
		sortBindings(info.Ports)
		infos = append(infos, info)
	}
	return infos, nil
}

// containerSpec translates CreateOptions into the Engine API's config
// structs.
func containerSpec(opts CreateOptions) (*container.Config, *container.HostConfig, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range opts.Ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %d/%s: %w", p.ContainerPort, proto, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{HostPort: strconv.Itoa(p.HostPort)})
	}

	binds := make([]string, 0, len(opts.Mounts))
	for _, m := range opts.Mounts {
		bind := m.HostPath + ":" + m.ContainerPath
		if m.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	cfg := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Cmd,
		Env:          env,
		ExposedPorts: exposed,
		Labels:       opts.Labels,
	}

	memory := opts.MemoryMiB * 1024 * 1024
	hostCfg := &container.HostConfig{
		Binds:        binds,
		PortBindings: bindings,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyMode(opts.RestartPolicy),
		},
		Resources: container.Resources{
			Memory:     memory,
			MemorySwap: memory,
			CPUShares:  opts.CPUShares,
		},
	}
	if opts.NoNewPrivileges {
		hostCfg.SecurityOpt = []string{"no-new-privileges:true"}
	}
	return cfg, hostCfg, nil
}

func infoFromInspect(resp types.ContainerJSON) *ContainerInfo {
	info := &ContainerInfo{Status: StatusUnknown}
	if resp.ContainerJSONBase != nil {
		info.ID = resp.ID
		info.Name = strings.TrimPrefix(resp.Name, "/")
		if resp.State != nil {
			info.Status = statusFromState(resp.State.Status)
		}
		if resp.HostConfig != nil {
			info.Ports = bindingsFromPortMap(resp.HostConfig.PortBindings)
		}
	}
	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
	}
	return info
}

func statusFromState(state string) ContainerStatus {
	switch state {
	case "running", "restarting":
		return StatusRunning
	case "created", "exited", "paused", "dead", "removing":
		return StatusStopped
	default:
		return StatusUnknown
	}
}

func bindingsFromPortMap(pm nat.PortMap) []PortBinding {
	var out []PortBinding
	for port, binds := range pm {
		for _, b := range binds {
			host, err := strconv.Atoi(b.HostPort)
			if err != nil || host == 0 {
				continue
			}
			out = append(out, PortBinding{
				ContainerPort: port.Int(),
				HostPort:      host,
				Protocol:      port.Proto(),
			})
		}
	}
	sortBindings(out)
	return out
}

func sortBindings(b []PortBinding) {
	sort.Slice(b, func(i, j int) bool {
		if b[i].HostPort != b[j].HostPort {
			return b[i].HostPort < b[j].HostPort
		}
		return b[i].Protocol < b[j].Protocol
	})
}

// translate maps daemon error classes onto the runtime sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errdefs.IsNotModified(err):
		return fmt.Errorf("%w: %v", ErrAlreadyInState, err)
	default:
		return err
	}
}

var _ Runtime = (*DockerRuntime)(nil)
