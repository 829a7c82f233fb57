package flow

import (
	"context"

	"github.com/flowgrid/flowgrid/pkg/runner"
)

// Loop runners iterate internally and return one aggregated output, keeping
// the traversal model at one record per node. Each iteration contributes one
// entry to the `iteration` list of the default output port.

const (
	defaultLoopVariable = "value"
	maxLoopIterations   = 100000
)

// ForRange iterates an inclusive numeric range.
type ForRange struct{}

func (f *ForRange) Execute(ctx context.Context, ectx runner.ExecutionContext, _ map[string]any) runner.Outcome {
	config := ectx.Node.Config

	start, ok := toFloat(config["start"])
	if !ok {
		return runner.Failf("missing required field 'start'")
	}

	end, ok := toFloat(config["end"])
	if !ok {
		return runner.Failf("missing required field 'end'")
	}

	step := 1.0
	if raw, ok := config["step"]; ok {
		step, ok = toFloat(raw)
		if !ok || step == 0 {
			return runner.Failf("step must be a non-zero number")
		}
	}

	if (step > 0 && end < start) || (step < 0 && end > start) {
		return runner.Failf("range from %v to %v never terminates with step %v", start, end, step)
	}

	variable := defaultLoopVariable
	if v, ok := config["variable"].(string); ok && v != "" {
		variable = v
	}

	entries := make([]any, 0)

	for value := start; (step > 0 && value <= end) || (step < 0 && value >= end); value += step {
		if err := ctx.Err(); err != nil {
			return runner.Fail(err)
		}

		if len(entries) >= maxLoopIterations {
			return runner.Failf("range exceeds %d iterations", maxLoopIterations)
		}

		entries = append(entries, map[string]any{
			variable: value,
			"index":  len(entries),
		})
	}

	return runner.CompletedMain(map[string]any{"iteration": entries})
}

func (f *ForRange) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"start":    map[string]any{"type": "number"},
			"end":      map[string]any{"type": "number"},
			"step":     map[string]any{"type": "number"},
			"variable": map[string]any{"type": "string"},
		},
		"required": []any{"start", "end"},
	}
}

// ForEach iterates the items of the input collection.
type ForEach struct{}

func (f *ForEach) Execute(ctx context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	config := ectx.Node.Config

	items, _, err := itemsFrom(config, input)
	if err != nil {
		return runner.Fail(err)
	}

	variable := "item"
	if v, ok := config["variable"].(string); ok && v != "" {
		variable = v
	}

	entries := make([]any, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return runner.Fail(err)
		}

		entries = append(entries, map[string]any{
			variable: item,
			"index":  i,
		})
	}

	return runner.CompletedMain(map[string]any{"iteration": entries})
}

func (f *ForEach) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items_field": map[string]any{"type": "string"},
			"variable":    map[string]any{"type": "string"},
		},
	}
}
