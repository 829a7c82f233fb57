// Package trigger provides the trigger entry runners. A trigger node is the
// entry point of an execution: the dispatch layer has already matched the
// external event to the workflow, so the runner's job is to shape the event
// payload onto the default output port.
package trigger

import (
	"context"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runner"
)

// Register adds an entry runner for every trigger type.
func Register(r *registry.Registry) {
	for _, triggerType := range []models.TriggerType{
		models.TriggerTypeCron,
		models.TriggerTypeManual,
		models.TriggerTypeWebhook,
		models.TriggerTypeEmail,
		models.TriggerTypeGitHub,
	} {
		r.Register(
			runner.Key{Type: models.NodeTypeTrigger, Subtype: string(triggerType)},
			&Entry{triggerType: triggerType},
		)
	}
}

// Entry passes the dispatched event payload through to the default port,
// tagged with the trigger type that fired.
type Entry struct {
	triggerType models.TriggerType
}

func (e *Entry) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	output := make(map[string]any, len(input)+1)
	for k, v := range input {
		output[k] = v
	}
	output["trigger_type"] = string(e.triggerType)

	ectx.Logger.Debug("trigger fired",
		"node_id", ectx.Node.ID,
		"trigger_type", string(e.triggerType),
	)

	return runner.CompletedMain(output)
}

func (e *Entry) Schema() map[string]any {
	switch e.triggerType {
	case models.TriggerTypeCron:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cron_expression": map[string]any{"type": "string"},
			},
			"required": []any{"cron_expression"},
		}
	case models.TriggerTypeWebhook:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []any{"path"},
		}
	case models.TriggerTypeGitHub:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"installation_id": map[string]any{"type": "number"},
				"repository":      map[string]any{"type": "string"},
				"events": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []any{"installation_id", "repository"},
		}
	case models.TriggerTypeManual:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"require_confirmation": map[string]any{"type": "boolean"},
			},
		}
	case models.TriggerTypeEmail:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"address": map[string]any{"type": "string"},
			},
		}
	default:
		return map[string]any{"type": "object"}
	}
}
