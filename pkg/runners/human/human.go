// Package human provides the human-in-the-loop approval runner. An approval
// node suspends its execution with a correlation key; a later inbound
// response resumes it and routes to the confirmed or rejected port.
package human

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runner"
)

const (
	SubtypeApproval = "approval"

	PortConfirmed = "confirmed"
	PortRejected  = "rejected"

	// ApprovedField is the resume payload key the runner inspects to pick
	// the output port.
	ApprovedField = "approved"
)

// Register adds the human runners to the registry.
func Register(r *registry.Registry) {
	r.Register(runner.Key{Type: models.NodeTypeHuman, Subtype: SubtypeApproval}, &Approval{})
}

// Approval suspends awaiting a human decision.
type Approval struct{}

func (a *Approval) Execute(_ context.Context, ectx runner.ExecutionContext, _ map[string]any) runner.Outcome {
	key, _ := ectx.Node.Config["correlation_key"].(string)
	if key == "" {
		key = fmt.Sprintf("approval:%s:%s:%s", ectx.ExecutionID, ectx.Node.ID, uuid.NewString())
	}

	ectx.Logger.Info("awaiting human approval",
		"node_id", ectx.Node.ID,
		"correlation_key", key,
	)

	return runner.SuspendHuman(key)
}

func (a *Approval) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"correlation_key": map[string]any{"type": "string"},
			"prompt":          map[string]any{"type": "string"},
		},
	}
}

// Resume routes the response to confirmed or rejected based on the approved
// field of the injected payload; anything but an explicit true rejects. The
// original input and the responder's payload both flow downstream.
func (a *Approval) Resume(_ context.Context, _ runner.ExecutionContext, input, injected map[string]any) runner.Outcome {
	output := make(map[string]any, len(input)+len(injected))
	for k, v := range input {
		output[k] = v
	}

	for k, v := range injected {
		output[k] = v
	}

	approved, _ := injected[ApprovedField].(bool)

	port := PortRejected
	if approved {
		port = PortConfirmed
	}

	return runner.Completed(map[string]map[string]any{port: output})
}

var _ runner.Resumer = (*Approval)(nil)
