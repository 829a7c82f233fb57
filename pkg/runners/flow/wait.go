package flow

import (
	"context"
	"fmt"

	"github.com/flowgrid/flowgrid/pkg/runner"
)

// Wait suspends until an external callback supplies its correlation key. The
// key can be configured; otherwise one is derived from the execution and node
// ids so callers can compute it without reading store state.
type Wait struct{}

func (w *Wait) Execute(_ context.Context, ectx runner.ExecutionContext, _ map[string]any) runner.Outcome {
	key, _ := ectx.Node.Config["correlation_key"].(string)
	if key == "" {
		key = WaitCorrelationKey(ectx.ExecutionID, ectx.Node.ID)
	}

	return runner.SuspendExternal(key)
}

func (w *Wait) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"correlation_key": map[string]any{"type": "string"},
		},
	}
}

// Resume completes with the original input merged under the callback payload,
// so downstream nodes see both what flowed in and what the caller supplied.
func (w *Wait) Resume(_ context.Context, _ runner.ExecutionContext, input, injected map[string]any) runner.Outcome {
	output := make(map[string]any, len(input)+len(injected))
	for k, v := range input {
		output[k] = v
	}

	for k, v := range injected {
		output[k] = v
	}

	return runner.CompletedMain(output)
}

// WaitCorrelationKey is the default correlation key of a wait node.
func WaitCorrelationKey(executionID, nodeID string) string {
	return fmt.Sprintf("wait:%s:%s", executionID, nodeID)
}

var _ runner.Resumer = (*Wait)(nil)
