package flow

import (
	"context"
	"time"

	"github.com/flowgrid/flowgrid/pkg/runner"
)

// Delay suspends with a timer due after the configured duration. A zero
// duration still suspends; the next timer sweep resolves it immediately, so
// delay semantics do not depend on in-process timers.
type Delay struct {
	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

func (d *Delay) Execute(_ context.Context, ectx runner.ExecutionContext, _ map[string]any) runner.Outcome {
	seconds, ok := toFloat(ectx.Node.Config["duration_seconds"])
	if !ok {
		return runner.Failf("missing required field 'duration_seconds'")
	}

	if seconds < 0 {
		return runner.Failf("duration_seconds must not be negative")
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	return runner.SuspendTimer(now().Add(time.Duration(seconds * float64(time.Second))))
}

func (d *Delay) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_seconds": map[string]any{"type": "number", "minimum": 0},
		},
		"required": []any{"duration_seconds"},
	}
}

// Resume passes the original input through untouched.
func (d *Delay) Resume(_ context.Context, _ runner.ExecutionContext, input, _ map[string]any) runner.Outcome {
	return runner.CompletedMain(input)
}

var _ runner.Resumer = (*Delay)(nil)
