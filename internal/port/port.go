package port

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/system"
)

// Valid host port bounds.
const (
	MinPort = 1
	MaxPort = 65535
)

// Ledger is the persisted port state the allocator respects.
type Ledger interface {
	UsedHostPorts(ctx context.Context) (map[int]bool, error)
	ReservePort(ctx context.Context, serverID string, hostPort int) (bool, error)
	ReleasePort(ctx context.Context, serverID string, hostPort int) error
}

// ContainerLister lists containers with their host port bindings.
type ContainerLister interface {
	List(ctx context.Context) ([]*runtime.ContainerInfo, error)
}

// Allocator assigns host ports. A candidate is busy if it was already
// chosen in the same job, appears in any server's persisted mappings, is
// reserved by another server, is published by any container, or has a
// listener on the host. A failed listener probe counts as busy; a failed
// container listing aborts the scan with PortAllocationFailed.
type Allocator struct {
	Range      config.PortRange
	Ledger     Ledger
	Containers ContainerLister
	Probe      system.ListenerProbe
}

// New returns an Allocator scanning window when a 1:1 mapping is taken.
func New(window config.PortRange, ledger Ledger, containers ContainerLister, probe system.ListenerProbe) *Allocator {
	return &Allocator{
		Range:      window,
		Ledger:     ledger,
		Containers: containers,
		Probe:      probe,
	}
}

// Allocate returns a free host port for containerPort on behalf of
// serverID and leaves it reserved for that server. containerPort itself is
// preferred; otherwise the window is scanned upward. reserved holds ports
// already chosen earlier in the same job and is never returned.
func (a *Allocator) Allocate(ctx context.Context, serverID string, containerPort int, reserved map[int]bool) (int, error) {
	used, err := a.Ledger.UsedHostPorts(ctx)
	if err != nil {
		return 0, errors.PortAllocationFailed(err)
	}

	s := &scan{Allocator: a, serverID: serverID, reserved: reserved, used: used}

	if containerPort >= MinPort && containerPort <= MaxPort {
		ok, err := s.try(ctx, containerPort)
		if err != nil {
			return 0, err
		}
		if ok {
			return containerPort, nil
		}
	}

	for p := a.Range.From; p <= a.Range.To; p++ {
		if p == containerPort {
			continue
		}
		ok, err := s.try(ctx, p)
		if err != nil {
			return 0, err
		}
		if ok {
			return p, nil
		}
	}
	return 0, errors.PortsExhausted(a.Range.From, a.Range.To)
}

// scan carries state across the candidates of one Allocate call. The
// container list is fetched once, on the first candidate that needs it.
type scan struct {
	*Allocator
	serverID   string
	reserved   map[int]bool
	used       map[int]bool
	containers []*runtime.ContainerInfo
	listed     bool
}

// try claims p if every authority agrees it is free. A non-nil error ends
// the scan.
func (s *scan) try(ctx context.Context, p int) (bool, error) {
	if s.reserved[p] {
		return false, nil
	}
	if s.used[p] {
		logging.Debug("port held by a server", "port", p)
		return false, nil
	}

	ok, err := s.Ledger.ReservePort(ctx, s.serverID, p)
	if err != nil {
		return false, errors.PortAllocationFailed(err)
	}
	if !ok {
		logging.Debug("port reserved by another server", "port", p)
		return false, nil
	}

	busy, err := s.daemonBusy(ctx, p)
	if err != nil {
		s.release(ctx, p)
		// the listing would fail the same way for every remaining candidate
		return false, errors.PortAllocationFailed(fmt.Errorf("container runtime check: %w", err))
	}
	if busy {
		logging.Debug("port published by a container", "port", p)
		s.release(ctx, p)
		return false, nil
	}

	busy, err = s.Probe.InUse(ctx, p)
	if err != nil {
		logging.Debug("listener probe failed, treating port as busy", "port", p, "error", err)
		s.release(ctx, p)
		return false, nil
	}
	if busy {
		logging.Debug("port has a host listener", "port", p)
		s.release(ctx, p)
		return false, nil
	}
	return true, nil
}

func (s *scan) daemonBusy(ctx context.Context, p int) (bool, error) {
	if !s.listed {
		containers, err := s.Containers.List(ctx)
		if err != nil {
			return false, err
		}
		s.containers = containers
		s.listed = true
	}
	for _, c := range s.containers {
		if c.PublishesHostPort(p) {
			return true, nil
		}
	}
	return false, nil
}

func (s *scan) release(ctx context.Context, p int) {
	if err := s.Ledger.ReleasePort(ctx, s.serverID, p); err != nil {
		logging.Warn("failed to release port reservation", "port", p, "server", s.serverID, "error", err)
	}
}

// CheckDaemon reports whether any container, running or stopped, publishes
// hostPort.
func (a *Allocator) CheckDaemon(ctx context.Context, hostPort int) (bool, error) {
	containers, err := a.Containers.List(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range containers {
		if c.PublishesHostPort(hostPort) {
			return true, nil
		}
	}
	return false, nil
}

// CheckSystem reports whether the host has a listener on hostPort.
func (a *Allocator) CheckSystem(ctx context.Context, hostPort int) (bool, error) {
	return a.Probe.InUse(ctx, hostPort)
}

// CheckLedger reports whether any server's persisted mappings hold hostPort.
func (a *Allocator) CheckLedger(ctx context.Context, hostPort int) (bool, error) {
	used, err := a.Ledger.UsedHostPorts(ctx)
	if err != nil {
		return false, err
	}
	return used[hostPort], nil
}

// Report is the per-authority view of one host port.
type Report struct {
	Port      int
	Ledger    bool
	Daemon    bool
	System    bool
	LedgerErr error
	DaemonErr error
	SystemErr error
}

// Busy reports whether the allocator would skip the port.
func (r Report) Busy() bool {
	return r.Ledger || r.Daemon || r.System ||
		r.LedgerErr != nil || r.DaemonErr != nil || r.SystemErr != nil
}

// Check queries every authority for hostPort without reserving it.
func (a *Allocator) Check(ctx context.Context, hostPort int) Report {
	r := Report{Port: hostPort}
	r.Ledger, r.LedgerErr = a.CheckLedger(ctx, hostPort)
	r.Daemon, r.DaemonErr = a.CheckDaemon(ctx, hostPort)
	r.System, r.SystemErr = a.CheckSystem(ctx, hostPort)
	return r
}
