// Package runtime is the container-runtime control channel used by the
// orchestrator and the port allocator.
//
// DockerRuntime talks to the Docker Engine API through the official Go
// client. MockRuntime is an in-memory implementation for tests; it can be
// preloaded with containers and told to fail specific operations.
//
// # Runtime Interface
//
//   - PullImage: pull with progress callbacks
//   - Create, Start, Stop, Restart, Remove: container lifecycle
//   - Inspect: state and configured port bindings of one container
//   - List: every container, running or stopped, with host bindings
//
// # Errors
//
// Missing containers surface as errors matching ErrNotFound. A start or
// stop that finds nothing to do surfaces as ErrAlreadyInState, when the
// daemon reports it at all; callers treat it as success.
package runtime
