package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockRuntime is a mock implementation of Runtime for testing
type MockRuntime struct {
	mu sync.RWMutex

	// Containers tracks mock containers by ID
	Containers map[string]*ContainerInfo

	// Created keeps the options each container was created with, by ID
	Created map[string]CreateOptions

	// Images records pulled image references
	Images map[string]bool

	// Errors allows injecting errors for specific operations
	Errors map[string]error

	// PullEvents are replayed to the progress callback of PullImage
	PullEvents []PullProgress

	// CallLog records all method calls for verification
	CallLog []MockCall

	nextID int
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMockRuntime creates a new mock runtime
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Containers: make(map[string]*ContainerInfo),
		Created:    make(map[string]CreateOptions),
		Images:     make(map[string]bool),
		Errors:     make(map[string]error),
		CallLog:    make([]MockCall, 0),
	}
}

func (m *MockRuntime) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockRuntime) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// ClearError removes an injected error
func (m *MockRuntime) ClearError(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Errors, operation)
}

// AddContainer adds a container to the mock and returns its ID
func (m *MockRuntime) AddContainer(name string, status ContainerStatus, ports ...PortBinding) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	m.Containers[id] = &ContainerInfo{
		ID:     id,
		Name:   name,
		Status: status,
		Ports:  ports,
	}
	return id
}

// SetStatus forces a container's status, e.g. to simulate a crash
func (m *MockRuntime) SetStatus(container string, status ContainerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.lookup(container); c != nil {
		c.Status = status
	}
}

// GetCalls returns all recorded calls
func (m *MockRuntime) GetCalls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]MockCall, len(m.CallLog))
	copy(calls, m.CallLog)
	return calls
}

// GetCallsFor returns all calls for a specific method
func (m *MockRuntime) GetCallsFor(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Reset clears all state
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers = make(map[string]*ContainerInfo)
	m.Created = make(map[string]CreateOptions)
	m.Images = make(map[string]bool)
	m.Errors = make(map[string]error)
	m.PullEvents = nil
	m.CallLog = make([]MockCall, 0)
}

func (m *MockRuntime) newID() string {
	m.nextID++
	return fmt.Sprintf("mock-%04d", m.nextID)
}

// lookup resolves an ID or name, as the daemon does.
func (m *MockRuntime) lookup(ref string) *ContainerInfo {
	if c, ok := m.Containers[ref]; ok {
		return c
	}
	for _, c := range m.Containers {
		if c.Name == ref {
			return c
		}
	}
	return nil
}

func notFound(ref string) error {
	return fmt.Errorf("%w: no such container: %s", ErrNotFound, ref)
}

// Name returns the runtime identifier
func (m *MockRuntime) Name() string {
	return "mock"
}

// PullImage records the image as pulled and replays PullEvents
func (m *MockRuntime) PullImage(ctx context.Context, image string, fn func(PullProgress)) error {
	m.mu.Lock()
	m.record("PullImage", image)
	if err, ok := m.Errors["PullImage"]; ok {
		m.mu.Unlock()
		return err
	}
	m.Images[image] = true
	events := append([]PullProgress(nil), m.PullEvents...)
	m.mu.Unlock()

	if fn != nil {
		for _, ev := range events {
			fn(ev)
		}
	}
	return nil
}

// Create creates a new stopped container
func (m *MockRuntime) Create(ctx context.Context, opts CreateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Create", opts)

	if err, ok := m.Errors["Create"]; ok {
		return "", err
	}
	if opts.Name != "" && m.lookup(opts.Name) != nil {
		return "", fmt.Errorf("conflict: container name %q is already in use", opts.Name)
	}

	id := m.newID()
	m.Containers[id] = &ContainerInfo{
		ID:     id,
		Name:   opts.Name,
		Image:  opts.Image,
		Status: StatusStopped,
		Labels: opts.Labels,
		Ports:  append([]PortBinding(nil), opts.Ports...),
	}
	m.Created[id] = opts
	return id, nil
}

// Start starts an existing container
func (m *MockRuntime) Start(ctx context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Start", container)

	if err, ok := m.Errors["Start"]; ok {
		return err
	}
	c := m.lookup(container)
	if c == nil {
		return notFound(container)
	}
	c.Status = StatusRunning
	return nil
}

// Stop stops a container. Stopping a stopped container succeeds, matching
// the daemon's 304 response.
func (m *MockRuntime) Stop(ctx context.Context, container string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Stop", container, timeout)

	if err, ok := m.Errors["Stop"]; ok {
		return err
	}
	c := m.lookup(container)
	if c == nil {
		return notFound(container)
	}
	c.Status = StatusStopped
	return nil
}

// Restart restarts a container
func (m *MockRuntime) Restart(ctx context.Context, container string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Restart", container, timeout)

	if err, ok := m.Errors["Restart"]; ok {
		return err
	}
	c := m.lookup(container)
	if c == nil {
		return notFound(container)
	}
	c.Status = StatusRunning
	return nil
}

// Remove removes a container
func (m *MockRuntime) Remove(ctx context.Context, container string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Remove", container, force)

	if err, ok := m.Errors["Remove"]; ok {
		return err
	}
	c := m.lookup(container)
	if c == nil {
		return notFound(container)
	}
	if c.Status == StatusRunning && !force {
		return fmt.Errorf("conflict: container %s is running", container)
	}
	delete(m.Containers, c.ID)
	delete(m.Created, c.ID)
	return nil
}

// Inspect returns a copy of the container's state
func (m *MockRuntime) Inspect(ctx context.Context, container string) (*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Inspect", container)

	if err, ok := m.Errors["Inspect"]; ok {
		return nil, err
	}
	c := m.lookup(container)
	if c == nil {
		return nil, notFound(container)
	}
	cp := *c
	return &cp, nil
}

// List returns copies of all containers, ordered by ID
func (m *MockRuntime) List(ctx context.Context) ([]*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("List")

	if err, ok := m.Errors["List"]; ok {
		return nil, err
	}

	containers := make([]*ContainerInfo, 0, len(m.Containers))
	for _, c := range m.Containers {
		cp := *c
		containers = append(containers, &cp)
	}
	sort.Slice(containers, func(i, j int) bool { return containers[i].ID < containers[j].ID })
	return containers, nil
}

// Ensure MockRuntime implements Runtime
var _ Runtime = (*MockRuntime)(nil)
