package flow

import (
	"context"
	"fmt"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/template"
)

// Switch evaluates a value expression and routes the input to the output
// port of the first matching case, or to the default port when nothing
// matches. Exactly one port fires.
type Switch struct{}

func (s *Switch) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	value, ok := ectx.Node.Config["value"].(string)
	if !ok || value == "" {
		return runner.Failf("missing required field 'value'")
	}

	cases, errs := parseCases(ectx.Node)
	if len(errs) > 0 {
		return runner.Fail(errs[0])
	}

	result, err := template.Render(value, map[string]any{"input": input})
	if err != nil {
		return runner.Failf("value evaluation failed: %w", err)
	}

	matched := fmt.Sprintf("%v", result)

	output := make(map[string]any, len(input)+1)
	for k, v := range input {
		output[k] = v
	}
	output["matched_value"] = matched

	for _, c := range cases {
		if c.Value == matched {
			return runner.Completed(map[string]map[string]any{c.OutputPort: output})
		}
	}

	return runner.Completed(map[string]map[string]any{PortDefault: output})
}

func (s *Switch) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{"type": "string"},
			"cases": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"value":       map[string]any{"type": "string"},
						"output_port": map[string]any{"type": "string"},
					},
					"required": []any{"value", "output_port"},
				},
			},
		},
		"required": []any{"value"},
	}
}

func (s *Switch) Validate(node *models.Node) []runner.ConfigError {
	errs := validateExpression(node, "value")

	if _, caseErrs := parseCasesChecked(node); len(caseErrs) > 0 {
		errs = append(errs, caseErrs...)
	}

	return errs
}

type switchCase struct {
	Value      string
	OutputPort string
}

func parseCases(node *models.Node) ([]switchCase, []error) {
	cases, errs := parseCasesChecked(node)
	if len(errs) > 0 {
		plain := make([]error, len(errs))
		for i, e := range errs {
			plain[i] = e
		}

		return nil, plain
	}

	return cases, nil
}

func parseCasesChecked(node *models.Node) ([]switchCase, []runner.ConfigError) {
	raw, ok := node.Config["cases"].([]any)
	if !ok {
		return nil, nil
	}

	var (
		cases []switchCase
		errs  []runner.ConfigError
	)

	for i, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			errs = append(errs, runner.ConfigError{
				NodeID: node.ID, Field: "cases",
				Message: fmt.Sprintf("case %d must be an object", i),
			})

			continue
		}

		value, ok := m["value"].(string)
		if !ok {
			errs = append(errs, runner.ConfigError{
				NodeID: node.ID, Field: "cases",
				Message: fmt.Sprintf("case %d missing 'value'", i),
			})

			continue
		}

		port, ok := m["output_port"].(string)
		if !ok || port == "" {
			errs = append(errs, runner.ConfigError{
				NodeID: node.ID, Field: "cases",
				Message: fmt.Sprintf("case %d missing 'output_port'", i),
			})

			continue
		}

		cases = append(cases, switchCase{Value: value, OutputPort: port})
	}

	return cases, errs
}
