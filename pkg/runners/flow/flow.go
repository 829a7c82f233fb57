// Package flow provides the flow-control runners: collection transforms
// (sort, filter, split, merge), branching (branch, switch), suspension
// (wait, delay), and loops (for_range, for_each).
package flow

import (
	"fmt"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runner"
)

// Output port names of the branching runners.
const (
	PortTrue      = "true"
	PortFalse     = "false"
	PortDefault   = "default"
	PortMatched   = "matched"
	PortUnmatched = "unmatched"
)

// Subtype names under models.NodeTypeFlow.
const (
	SubtypeSort     = "sort"
	SubtypeFilter   = "filter"
	SubtypeSplit    = "split"
	SubtypeMerge    = "merge"
	SubtypeBranch   = "branch"
	SubtypeSwitch   = "switch"
	SubtypeWait     = "wait"
	SubtypeDelay    = "delay"
	SubtypeForRange = "for_range"
	SubtypeForEach  = "for_each"
)

// DefaultItemsField is the input key collection runners read when the node
// config does not name one.
const DefaultItemsField = "items"

// Register adds every flow runner to the registry.
func Register(r *registry.Registry) {
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeSort}, &Sort{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeFilter}, &Filter{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeSplit}, &Split{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeMerge}, &Merge{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeBranch}, &Branch{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeSwitch}, &Switch{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeWait}, &Wait{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeDelay}, &Delay{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeForRange}, &ForRange{})
	r.Register(runner.Key{Type: models.NodeTypeFlow, Subtype: SubtypeForEach}, &ForEach{})
}

// itemsFrom extracts the collection a transform runner operates on.
func itemsFrom(config, input map[string]any) ([]any, string, error) {
	field := DefaultItemsField
	if f, ok := config["items_field"].(string); ok && f != "" {
		field = f
	}

	raw, ok := input[field]
	if !ok {
		return nil, field, fmt.Errorf("input has no field '%s'", field)
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, field, fmt.Errorf("input field '%s' is not a list", field)
	}

	return items, field, nil
}
