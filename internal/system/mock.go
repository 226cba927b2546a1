package system

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
)

// MockFS is an in-memory FileSystem. Parent directories must exist
// before WriteFile, as on a real host.
type MockFS struct {
	mu    sync.Mutex
	files map[string]mockFile
	dirs  map[string]bool

	// Injected failures.
	MkdirAllErr  error
	WriteFileErr error
	RemoveAllErr error
}

type mockFile struct {
	data []byte
	mode fs.FileMode
}

// NewMockFS returns an empty MockFS.
func NewMockFS() *MockFS {
	return &MockFS{
		files: make(map[string]mockFile),
		dirs:  make(map[string]bool),
	}
}

// GetFile returns a written file's content and mode.
func (m *MockFS) GetFile(path string) ([]byte, fs.FileMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	return f.data, f.mode, ok
}

func (m *MockFS) MkdirAll(path string, perm fs.FileMode) error {
	if m.MkdirAllErr != nil {
		return m.MkdirAllErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := filepath.Clean(path); p != "." && p != "/"; p = filepath.Dir(p) {
		m.dirs[p] = true
	}
	return nil
}

func (m *MockFS) WriteFile(path string, data []byte, perm fs.FileMode) error {
	if m.WriteFileErr != nil {
		return m.WriteFileErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if !m.dirs[filepath.Dir(path)] {
		return &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	m.files[path] = mockFile{data: append([]byte(nil), data...), mode: perm}
	return nil
}

func (m *MockFS) RemoveAll(path string) error {
	if m.RemoveAllErr != nil {
		return m.RemoveAllErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	prefix := path + string(filepath.Separator)
	for p := range m.files {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(m.files, p)
		}
	}
	for p := range m.dirs {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(m.dirs, p)
		}
	}
	return nil
}

func (m *MockFS) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	_, isFile := m.files[path]
	return isFile || m.dirs[path]
}

// MockExecutor answers commands by name from canned responses.
type MockExecutor struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	calls     [][]string
}

// MockResponse is the canned result of a command.
type MockResponse struct {
	Output []byte
	Err    error
}

// NewMockExecutor returns an executor that answers every command with
// empty output until told otherwise.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{responses: make(map[string]MockResponse)}
}

// AddResponse sets the result for command name.
func (m *MockExecutor) AddResponse(name string, output []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[name] = MockResponse{Output: output, Err: err}
}

func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string{name}, args...))
	r := m.responses[name]
	return r.Output, r.Err
}

// LastCall returns the argv of the most recent command.
func (m *MockExecutor) LastCall() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// MockProbe reports a fixed set of ports as having listeners.
type MockProbe struct {
	mu sync.Mutex

	Busy map[int]bool

	// Err, when set, is returned for every port.
	Err error

	// Checked records probed ports in order.
	Checked []int
}

// NewMockProbe returns a probe reporting the given ports busy.
func NewMockProbe(busy ...int) *MockProbe {
	p := &MockProbe{Busy: make(map[int]bool)}
	for _, port := range busy {
		p.Busy[port] = true
	}
	return p
}

// SetBusy marks ports as having listeners.
func (p *MockProbe) SetBusy(ports ...int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, port := range ports {
		p.Busy[port] = true
	}
}

func (p *MockProbe) InUse(ctx context.Context, port int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Checked = append(p.Checked, port)
	if p.Err != nil {
		return false, p.Err
	}
	return p.Busy[port], nil
}

var (
	_ FileSystem      = (*MockFS)(nil)
	_ CommandExecutor = (*MockExecutor)(nil)
	_ ListenerProbe   = (*MockProbe)(nil)
)
