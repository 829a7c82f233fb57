package flow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flowgrid/flowgrid/pkg/runner"
)

// Sort orders the input collection by a key. The sort is stable, so sorting
// an already-sorted collection returns it unchanged.
type Sort struct{}

func (s *Sort) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	config := ectx.Node.Config

	key, ok := config["key"].(string)
	if !ok || key == "" {
		return runner.Failf("missing required field 'key'")
	}

	descending := false
	if order, ok := config["order"].(string); ok {
		switch order {
		case "", "asc":
		case "desc":
			descending = true
		default:
			return runner.Failf("invalid order '%s': must be asc or desc", order)
		}
	}

	items, field, err := itemsFrom(config, input)
	if err != nil {
		return runner.Fail(err)
	}

	sorted := make([]any, len(items))
	copy(sorted, items)

	sort.SliceStable(sorted, func(i, j int) bool {
		c := compareValues(itemKey(sorted[i], key), itemKey(sorted[j], key))
		if descending {
			return c > 0
		}

		return c < 0
	})

	output := make(map[string]any, len(input))
	for k, v := range input {
		output[k] = v
	}
	output[field] = sorted

	return runner.CompletedMain(output)
}

func (s *Sort) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key":         map[string]any{"type": "string"},
			"order":       map[string]any{"type": "string", "enum": []any{"asc", "desc"}},
			"items_field": map[string]any{"type": "string"},
		},
		"required": []any{"key"},
	}
}

func itemKey(item any, key string) any {
	m, ok := item.(map[string]any)
	if !ok {
		return nil
	}

	return m[key]
}

// compareValues orders mixed scalar values: numbers before strings, nil
// first. Non-comparable values compare by their formatted form so the order
// stays total.
func compareValues(a, b any) int {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)

	switch {
	case aok && bok:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	case aok:
		return -1
	case bok:
		return 1
	}

	as, aok := a.(string)
	bs, bok := b.(string)

	if aok && bok {
		return strings.Compare(as, bs)
	}

	if a == nil && b == nil {
		return 0
	}

	if a == nil {
		return -1
	}

	if b == nil {
		return 1
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
