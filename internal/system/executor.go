package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor runs host commands.
type CommandExecutor interface {
	// Execute returns the command's stdout. A non-zero exit yields an
	// error carrying stderr.
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor returns an executor backed by os/exec.
func DefaultExecutor() CommandExecutor {
	return hostExecutor{}
}

type hostExecutor struct{}

func (hostExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return out, fmt.Errorf("%s: %w: %s", name, err, msg)
			}
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
