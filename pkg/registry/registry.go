// Package registry maps (node type, node subtype) pairs to runner
// implementations and validates node configurations before execution.
// Registration happens once at startup; lookup fails closed on unknown keys.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/runner"
)

// Registry resolves runners by key and validates node configs against the
// runner's JSON schema.
type Registry struct {
	logger  *slog.Logger
	runners map[runner.Key]runner.Runner
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger.With("module", "registry"),
		runners: make(map[runner.Key]runner.Runner),
	}
}

// Register binds a runner to a key. Re-registering a key replaces the
// previous runner.
func (r *Registry) Register(key runner.Key, rn runner.Runner) {
	r.runners[key] = rn
}

// Resolve returns the runner for a node, or an error for unknown keys.
func (r *Registry) Resolve(node *models.Node) (runner.Runner, error) {
	key := runner.NewKey(node)

	rn, ok := r.runners[key]
	if !ok {
		return nil, fmt.Errorf("no runner registered for %s", key)
	}

	return rn, nil
}

// Keys returns every registered key.
func (r *Registry) Keys() []runner.Key {
	keys := make([]runner.Key, 0, len(r.runners))
	for key := range r.runners {
		keys = append(keys, key)
	}

	return keys
}

// ValidateNode checks a node against its runner's JSON schema plus any
// runner-specific validation. An unknown (type, subtype) pair is itself a
// config error, so validation fails before any execution attempt.
func (r *Registry) ValidateNode(node *models.Node) []runner.ConfigError {
	rn, err := r.Resolve(node)
	if err != nil {
		return []runner.ConfigError{{NodeID: node.ID, Message: err.Error()}}
	}

	var errs []runner.ConfigError

	if schema := rn.Schema(); schema != nil {
		config := node.Config
		if config == nil {
			config = map[string]any{}
		}

		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(schema),
			gojsonschema.NewGoLoader(config),
		)
		if err != nil {
			return []runner.ConfigError{{NodeID: node.ID, Message: "schema validation failed: " + err.Error()}}
		}

		for _, desc := range result.Errors() {
			errs = append(errs, runner.ConfigError{
				NodeID:  node.ID,
				Field:   desc.Field(),
				Message: desc.Description(),
			})
		}
	}

	if validator, ok := rn.(runner.Validator); ok {
		errs = append(errs, validator.Validate(node)...)
	}

	return errs
}

// ValidateWorkflow validates every node of a workflow. The engine refuses to
// start an execution while this returns errors.
func (r *Registry) ValidateWorkflow(workflow *models.Workflow) []runner.ConfigError {
	var errs []runner.ConfigError

	for _, node := range workflow.Nodes {
		errs = append(errs, r.ValidateNode(node)...)
	}

	return errs
}
