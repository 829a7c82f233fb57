package flow

import (
	"context"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/runner"
)

// Merge joins multiple execution paths. By default it waits for every
// predecessor; with mode "any" it fires as soon as one predecessor produces
// data and treats skipped branches as satisfied.
type Merge struct{}

func (m *Merge) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	mode, _ := ectx.Node.Config["mode"].(string)
	if mode != "" && mode != string(runner.InputModeAll) && mode != string(runner.InputModeAny) {
		return runner.Failf("invalid mode '%s': must be all or any", mode)
	}

	return runner.CompletedMain(input)
}

func (m *Merge) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mode": map[string]any{"type": "string", "enum": []any{"all", "any"}},
		},
	}
}

// InputMode resolves the join policy from the node's configured mode.
func (m *Merge) InputMode(node *models.Node) runner.InputMode {
	if mode, _ := node.Config["mode"].(string); mode == string(runner.InputModeAny) {
		return runner.InputModeAny
	}

	return runner.InputModeAll
}
