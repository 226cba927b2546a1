package orchestrator

import (
	"context"

	"github.com/firefly-engineering/hearth/internal/logging"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// saga is a stack of undo steps for side effects already taken.
type saga struct {
	steps []undoStep
}

func (s *saga) push(name string, fn func(ctx context.Context) error) {
	s.steps = append(s.steps, undoStep{name: name, fn: fn})
}

// unwind runs the undo steps newest first. Failures are logged and the
// remaining steps still run.
func (s *saga) unwind(ctx context.Context) {
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.fn(ctx); err != nil {
			logging.Warn("compensation step failed", "step", step.name, "error", err)
			continue
		}
		logging.Debug("compensated", "step", step.name)
	}
	s.steps = nil
}
