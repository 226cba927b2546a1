package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// ListenerProbe reports whether anything on the host listens on a port.
type ListenerProbe interface {
	InUse(ctx context.Context, port int) (bool, error)
}

// SocketProbe asks ss(8) for TCP and UDP listeners on the port and falls
// back to trial binds when ss is not installed.
type SocketProbe struct {
	Exec CommandExecutor
	Bind ListenerProbe
}

// NewSocketProbe returns a SocketProbe using exec for ss.
func NewSocketProbe(exec CommandExecutor) *SocketProbe {
	return &SocketProbe{Exec: exec, Bind: BindProbe{}}
}

// InUse implements ListenerProbe.
func (p *SocketProbe) InUse(ctx context.Context, port int) (bool, error) {
	out, err := p.Exec.Execute(ctx, "ss", "-H", "-l", "-n", "-t", "-u", "sport", "=", ":"+strconv.Itoa(port))
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) && p.Bind != nil {
			return p.Bind.InUse(ctx, port)
		}
		return false, fmt.Errorf("listener probe: %w", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// BindProbe tries to bind the port on all interfaces for TCP and UDP.
type BindProbe struct{}

// InUse implements ListenerProbe. Errors other than "address in use", such
// as permission to bind a privileged port, are returned to the caller.
func (BindProbe) InUse(ctx context.Context, port int) (bool, error) {
	addr := ":" + strconv.Itoa(port)

	l, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return true, nil
		}
		return false, err
	}
	l.Close()

	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return true, nil
		}
		return false, err
	}
	pc.Close()
	return false, nil
}

var (
	_ ListenerProbe = (*SocketProbe)(nil)
	_ ListenerProbe = BindProbe{}
)
