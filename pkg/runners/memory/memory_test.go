package memory_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/flowgrid/pkg/kv"
	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/runners/memory"
)

func ectx(t *testing.T, subtype string, config map[string]any) runner.ExecutionContext {
	t.Helper()

	return runner.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Node: &models.Node{
			ID:      "mem-1",
			Type:    models.NodeTypeMemory,
			Subtype: subtype,
			Config:  config,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newRunners(t *testing.T) (*registry.Registry, kv.Store) {
	t.Helper()

	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewRegistry(logger)
	memory.Register(reg, store)

	return reg, store
}

func TestSetGet_RoundTrip(t *testing.T) {
	reg, _ := newRunners(t)

	setNode := &models.Node{ID: "set", Type: models.NodeTypeMemory, Subtype: memory.SubtypeSet}
	setRunner, err := reg.Resolve(setNode)
	require.NoError(t, err)

	outcome := setRunner.Execute(t.Context(),
		ectx(t, memory.SubtypeSet, map[string]any{"key": "counter"}),
		map[string]any{"value": 41.0})
	require.NoError(t, outcome.Err)

	getNode := &models.Node{ID: "get", Type: models.NodeTypeMemory, Subtype: memory.SubtypeGet}
	getRunner, err := reg.Resolve(getNode)
	require.NoError(t, err)

	outcome = getRunner.Execute(t.Context(),
		ectx(t, memory.SubtypeGet, map[string]any{"key": "counter"}), nil)
	require.NoError(t, outcome.Err)

	data := outcome.Outputs[models.DefaultPort]
	assert.Equal(t, true, data["found"])
	assert.InDelta(t, 41.0, data["value"], 0.0001)
}

func TestGet_MissingKeyUsesDefault(t *testing.T) {
	reg, _ := newRunners(t)

	getRunner, err := reg.Resolve(&models.Node{ID: "get", Type: models.NodeTypeMemory, Subtype: memory.SubtypeGet})
	require.NoError(t, err)

	outcome := getRunner.Execute(t.Context(),
		ectx(t, memory.SubtypeGet, map[string]any{"key": "absent", "default": "fallback"}), nil)
	require.NoError(t, outcome.Err)

	data := outcome.Outputs[models.DefaultPort]
	assert.Equal(t, false, data["found"])
	assert.Equal(t, "fallback", data["value"])
}

func TestSet_TemplatedKey(t *testing.T) {
	reg, store := newRunners(t)

	setRunner, err := reg.Resolve(&models.Node{ID: "set", Type: models.NodeTypeMemory, Subtype: memory.SubtypeSet})
	require.NoError(t, err)

	outcome := setRunner.Execute(t.Context(),
		ectx(t, memory.SubtypeSet, map[string]any{
			"key":   "user:{{.input.user_id}}",
			"value": "{{.input.name}}",
		}),
		map[string]any{"user_id": "42", "name": "ada"})
	require.NoError(t, outcome.Err)
	assert.Equal(t, "user:42", outcome.Outputs[models.DefaultPort]["key"])

	value, found, err := store.Get(t.Context(), "user:42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ada", value)
}

func TestSet_MissingKeyFails(t *testing.T) {
	reg, _ := newRunners(t)

	setRunner, err := reg.Resolve(&models.Node{ID: "set", Type: models.NodeTypeMemory, Subtype: memory.SubtypeSet})
	require.NoError(t, err)

	outcome := setRunner.Execute(t.Context(), ectx(t, memory.SubtypeSet, map[string]any{}), nil)
	require.Error(t, outcome.Err)
}
