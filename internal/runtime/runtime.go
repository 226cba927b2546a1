package runtime

import (
	"context"
	"errors"
	"time"
)

// ContainerStatus represents the state of a container
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not-found"
	StatusUnknown  ContainerStatus = "unknown"
)

var (
	// ErrNotFound is returned when the runtime has no such container or image.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyInState is returned when a start or stop finds the container
	// already where it was asked to go.
	ErrAlreadyInState = errors.New("container already in requested state")
)

// PortBinding publishes a container port on a host port.
type PortBinding struct {
	ContainerPort int
	HostPort      int
	Protocol      string
}

// Mount is a host directory or file bound into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ContainerInfo holds information about a container
type ContainerInfo struct {
	ID     string
	Name   string
	Image  string
	Status ContainerStatus
	Labels map[string]string

	// Ports lists host bindings whether or not the container is running.
	Ports []PortBinding
}

// PublishesHostPort reports whether the container binds hostPort.
func (c *ContainerInfo) PublishesHostPort(hostPort int) bool {
	for _, p := range c.Ports {
		if p.HostPort == hostPort {
			return true
		}
	}
	return false
}

// PullProgress is one progress event from an image pull.
type PullProgress struct {
	Status  string
	Current int64
	Total   int64
}

// CreateOptions holds options for creating a container
type CreateOptions struct {
	Name  string
	Image string
	Cmd   []string
	Env   map[string]string

	Ports  []PortBinding
	Mounts []Mount

	// MemoryMiB caps memory and memory+swap alike. Zero is unlimited.
	MemoryMiB int64
	CPUShares int64

	RestartPolicy   string
	NoNewPrivileges bool
	Labels          map[string]string
}

// Runtime is the container-runtime control channel. All methods should be
// safe for concurrent use. Container arguments accept an ID or a name.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "docker")
	Name() string

	// PullImage pulls image, reporting progress if fn is non-nil.
	PullImage(ctx context.Context, image string, fn func(PullProgress)) error

	// Create creates a container without starting it and returns its ID.
	Create(ctx context.Context, opts CreateOptions) (string, error)

	// Start starts an existing container
	Start(ctx context.Context, container string) error

	// Stop stops a container, killing it after timeout.
	Stop(ctx context.Context, container string, timeout time.Duration) error

	// Restart restarts a container, killing it after timeout.
	Restart(ctx context.Context, container string, timeout time.Duration) error

	// Remove removes a container; force removes it even while running.
	Remove(ctx context.Context, container string, force bool) error

	// Inspect returns the container's state. A missing container yields
	// an error matching ErrNotFound.
	Inspect(ctx context.Context, container string) (*ContainerInfo, error)

	// List returns every container, running or stopped, with its host
	// port bindings.
	List(ctx context.Context) ([]*ContainerInfo, error)
}

// IsNotFound reports whether err means the container does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyInState reports whether err means no state change was needed.
func IsAlreadyInState(err error) bool {
	return errors.Is(err, ErrAlreadyInState)
}
