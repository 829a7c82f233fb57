package flow

import (
	"context"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/template"
)

// Split partitions the input collection by a condition: items evaluating
// truthy go to the matched port, the rest to the unmatched port. Both ports
// fire, each carrying its partition.
type Split struct{}

func (s *Split) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	config := ectx.Node.Config

	condition, ok := config["condition"].(string)
	if !ok || condition == "" {
		return runner.Failf("missing required field 'condition'")
	}

	items, field, err := itemsFrom(config, input)
	if err != nil {
		return runner.Fail(err)
	}

	matched := make([]any, 0, len(items))
	unmatched := make([]any, 0, len(items))

	for _, item := range items {
		result, err := template.Render(condition, map[string]any{"item": item, "input": input})
		if err != nil {
			return runner.Failf("condition evaluation failed: %w", err)
		}

		if template.Truthy(result) {
			matched = append(matched, item)
		} else {
			unmatched = append(unmatched, item)
		}
	}

	return runner.Completed(map[string]map[string]any{
		PortMatched:   {field: matched},
		PortUnmatched: {field: unmatched},
	})
}

func (s *Split) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition":   map[string]any{"type": "string"},
			"items_field": map[string]any{"type": "string"},
		},
		"required": []any{"condition"},
	}
}

func (s *Split) Validate(node *models.Node) []runner.ConfigError {
	return validateExpression(node, "condition")
}
