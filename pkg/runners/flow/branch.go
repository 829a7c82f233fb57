package flow

import (
	"context"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/template"
)

// Branch evaluates a condition against the node's input and fires exactly one
// of its true/false output ports; the engine marks successors of the other
// port skipped. The output carries the input through plus the evaluation
// result.
type Branch struct{}

func (b *Branch) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	condition, ok := ectx.Node.Config["condition"].(string)
	if !ok || condition == "" {
		return runner.Failf("missing required field 'condition'")
	}

	result, err := template.Render(condition, map[string]any{"input": input})
	if err != nil {
		return runner.Failf("condition evaluation failed: %w", err)
	}

	output := make(map[string]any, len(input)+2)
	for k, v := range input {
		output[k] = v
	}

	isTrue := template.Truthy(result)
	output["condition_result"] = isTrue
	output["evaluated_value"] = result

	port := PortFalse
	if isTrue {
		port = PortTrue
	}

	return runner.Completed(map[string]map[string]any{port: output})
}

func (b *Branch) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{"type": "string"},
		},
		"required": []any{"condition"},
	}
}

func (b *Branch) Validate(node *models.Node) []runner.ConfigError {
	return validateExpression(node, "condition")
}
