// Package memory provides the memory node runners: get and set operations
// over the workflow key-value backend.
package memory

import (
	"context"
	"fmt"

	"github.com/flowgrid/flowgrid/pkg/kv"
	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/template"
)

const (
	SubtypeGet = "kv_get"
	SubtypeSet = "kv_set"
)

// Register adds the memory runners backed by the given store.
func Register(r *registry.Registry, store kv.Store) {
	r.Register(runner.Key{Type: models.NodeTypeMemory, Subtype: SubtypeGet}, &Get{store: store})
	r.Register(runner.Key{Type: models.NodeTypeMemory, Subtype: SubtypeSet}, &Set{store: store})
}

// resolveKey renders the configured key against the node input, so keys can
// embed execution data ("user:{{.input.user_id}}").
func resolveKey(config, input map[string]any) (string, error) {
	raw, ok := config["key"].(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("missing required field 'key'")
	}

	rendered, err := template.Render(raw, map[string]any{"input": input})
	if err != nil {
		return "", fmt.Errorf("key evaluation failed: %w", err)
	}

	key := fmt.Sprintf("%v", rendered)
	if key == "" {
		return "", fmt.Errorf("key evaluated to empty string")
	}

	return key, nil
}

// Get reads a value from the key-value backend. A missing key completes with
// found=false and the configured default, not an error.
type Get struct {
	store kv.Store
}

func (g *Get) Execute(ctx context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	key, err := resolveKey(ectx.Node.Config, input)
	if err != nil {
		return runner.Fail(err)
	}

	value, found, err := g.store.Get(ctx, key)
	if err != nil {
		return runner.Failf("failed to read key '%s': %w", key, err)
	}

	if !found {
		value = ectx.Node.Config["default"]
	}

	return runner.CompletedMain(map[string]any{
		"key":   key,
		"value": value,
		"found": found,
	})
}

func (g *Get) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key":     map[string]any{"type": "string"},
			"default": map[string]any{},
		},
		"required": []any{"key"},
	}
}

// Set writes a value to the key-value backend. The value comes from the
// configured expression, or from the input's `value` field when absent.
type Set struct {
	store kv.Store
}

func (s *Set) Execute(ctx context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	key, err := resolveKey(ectx.Node.Config, input)
	if err != nil {
		return runner.Fail(err)
	}

	var value any

	if expression, ok := ectx.Node.Config["value"].(string); ok && expression != "" {
		value, err = template.Render(expression, map[string]any{"input": input})
		if err != nil {
			return runner.Failf("value evaluation failed: %w", err)
		}
	} else if raw, ok := ectx.Node.Config["value"]; ok {
		value = raw
	} else {
		value = input["value"]
	}

	if err := s.store.Set(ctx, key, value); err != nil {
		return runner.Failf("failed to write key '%s': %w", key, err)
	}

	return runner.CompletedMain(map[string]any{
		"key":   key,
		"value": value,
	})
}

func (s *Set) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key":   map[string]any{"type": "string"},
			"value": map[string]any{},
		},
		"required": []any{"key"},
	}
}
