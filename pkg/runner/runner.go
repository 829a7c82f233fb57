// Package runner defines the contract between the execution engine and the
// pluggable node behaviors. A runner is resolved by the node's (type, subtype)
// pair and returns a tagged Outcome: completed with per-port outputs,
// suspended awaiting an external event, or failed.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowgrid/flowgrid/pkg/models"
)

// Key identifies a runner by node type and subtype.
type Key struct {
	Type    models.NodeType
	Subtype string
}

func (k Key) String() string {
	return string(k.Type) + "/" + k.Subtype
}

// NewKey builds the registry key for a node.
func NewKey(node *models.Node) Key {
	return Key{Type: node.Type, Subtype: node.Subtype}
}

// ExecutionContext carries the per-node execution environment. Runners must
// not mutate the node definition.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	Node        *models.Node
	Logger      *slog.Logger
}

// Suspension describes why a runner cannot complete synchronously.
type Suspension struct {
	Kind           models.SuspensionKind
	DueAt          *time.Time // timers
	CorrelationKey string     // human input / external callbacks
}

// Outcome is the tagged result of one runner invocation. Exactly one of
// Outputs, Suspension, or Err is set; use the constructors below.
type Outcome struct {
	Outputs    map[string]map[string]any // keyed by output port name
	Suspension *Suspension
	Err        error
}

// Completed builds an outcome with explicit per-port outputs.
func Completed(outputs map[string]map[string]any) Outcome {
	return Outcome{Outputs: outputs}
}

// CompletedMain builds an outcome emitting data on the default output port.
func CompletedMain(data map[string]any) Outcome {
	return Outcome{Outputs: map[string]map[string]any{models.DefaultPort: data}}
}

// SuspendTimer builds a timer suspension due at the given time.
func SuspendTimer(dueAt time.Time) Outcome {
	return Outcome{Suspension: &Suspension{Kind: models.SuspensionKindTimer, DueAt: &dueAt}}
}

// SuspendHuman builds a human-input suspension with a correlation key.
func SuspendHuman(correlationKey string) Outcome {
	return Outcome{Suspension: &Suspension{Kind: models.SuspensionKindHumanInput, CorrelationKey: correlationKey}}
}

// SuspendExternal builds an external-wait suspension with a correlation key.
func SuspendExternal(correlationKey string) Outcome {
	return Outcome{Suspension: &Suspension{Kind: models.SuspensionKindExternalWait, CorrelationKey: correlationKey}}
}

// Fail builds a failed outcome.
func Fail(err error) Outcome {
	return Outcome{Err: err}
}

// Failf builds a failed outcome from a format string.
func Failf(format string, args ...any) Outcome {
	return Outcome{Err: fmt.Errorf(format, args...)}
}

// Runner is the behavior implementation for one (type, subtype) pair.
// Implementations are stateless across calls; per-node parameters arrive via
// ectx.Node.Config and upstream data via input.
type Runner interface {
	Execute(ctx context.Context, ectx ExecutionContext, input map[string]any) Outcome

	// Schema returns the JSON schema for the node's configuration. The
	// registry validates node configs against it before any execution.
	Schema() map[string]any
}

// Resumer is implemented by runners whose execution suspends and later
// completes from an external event (wait, delay, human approval). The engine
// calls Resume with the node's original input and the injected resume payload
// instead of re-invoking Execute. Runners without Resumer complete with the
// injected payload on the default port.
type Resumer interface {
	Resume(ctx context.Context, ectx ExecutionContext, input, injected map[string]any) Outcome
}

// InputMode selects how a fan-in node waits for its predecessors.
type InputMode string

const (
	// InputModeAll requires every incoming connection to produce data before
	// the node becomes ready; a skipped predecessor skips the node.
	InputModeAll InputMode = "all"
	// InputModeAny makes the node ready as soon as one predecessor produces
	// data; skipped predecessors are treated as satisfied.
	InputModeAny InputMode = "any"
)

// InputModer is implemented by runners that override the default fan-in join
// policy (InputModeAll). The node is passed so the policy can depend on the
// node's configuration.
type InputModer interface {
	InputMode(node *models.Node) InputMode
}

// ConfigError describes one invalid node configuration entry.
type ConfigError struct {
	NodeID  string `json:"node_id"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
	}

	return fmt.Sprintf("node %s: field %s: %s", e.NodeID, e.Field, e.Message)
}

// Validator is implemented by runners with validation needs beyond their JSON
// schema (cross-field rules, expression parsing).
type Validator interface {
	Validate(node *models.Node) []ConfigError
}
