package flow

import (
	"context"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/template"
)

// Filter keeps the items of the input collection whose condition expression
// evaluates truthy. The expression sees each item as `.item` and the full
// node input as `.input`.
type Filter struct{}

func (f *Filter) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	config := ectx.Node.Config

	condition, ok := config["condition"].(string)
	if !ok || condition == "" {
		return runner.Failf("missing required field 'condition'")
	}

	items, field, err := itemsFrom(config, input)
	if err != nil {
		return runner.Fail(err)
	}

	kept := make([]any, 0, len(items))

	for _, item := range items {
		result, err := template.Render(condition, map[string]any{"item": item, "input": input})
		if err != nil {
			return runner.Failf("condition evaluation failed: %w", err)
		}

		if template.Truthy(result) {
			kept = append(kept, item)
		}
	}

	output := make(map[string]any, len(input))
	for k, v := range input {
		output[k] = v
	}
	output[field] = kept

	return runner.CompletedMain(output)
}

func (f *Filter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition":   map[string]any{"type": "string"},
			"items_field": map[string]any{"type": "string"},
		},
		"required": []any{"condition"},
	}
}

// Validate parses the condition expression ahead of execution.
func (f *Filter) Validate(node *models.Node) []runner.ConfigError {
	return validateExpression(node, "condition")
}

func validateExpression(node *models.Node, field string) []runner.ConfigError {
	expression, ok := node.Config[field].(string)
	if !ok || expression == "" {
		return nil // presence is enforced by the schema
	}

	if err := template.Check(expression); err != nil {
		return []runner.ConfigError{{NodeID: node.ID, Field: field, Message: err.Error()}}
	}

	return nil
}
