package action_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/runners/action"
)

func ectx(t *testing.T, subtype string, config map[string]any) runner.ExecutionContext {
	t.Helper()

	return runner.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Node: &models.Node{
			ID:      "act-1",
			Type:    models.NodeTypeAction,
			Subtype: subtype,
			Config:  config,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestLog_RendersMessageAndPassesThrough(t *testing.T) {
	l := &action.Log{}

	outcome := l.Execute(t.Context(), ectx(t, action.SubtypeLog, map[string]any{
		"message": "processing {{.input.order_id}}",
	}), map[string]any{"order_id": "o-7"})

	require.NoError(t, outcome.Err)
	data := outcome.Outputs[models.DefaultPort]
	assert.Equal(t, "processing o-7", data["logged_message"])
	assert.Equal(t, "o-7", data["order_id"])
}

func TestHTTPRequest_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "token-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"created": true}`))
	}))
	defer server.Close()

	h := &action.HTTPRequest{Client: server.Client()}

	outcome := h.Execute(t.Context(), ectx(t, action.SubtypeHTTPRequest, map[string]any{
		"url":    server.URL + "/orders",
		"method": "POST",
		"body":   `{"id": "{{.input.order_id}}"}`,
		"headers": map[string]any{
			"Authorization": "token-1",
		},
	}), map[string]any{"order_id": "o-7"})

	require.NoError(t, outcome.Err)
	require.Contains(t, outcome.Outputs, action.PortSuccess)

	data := outcome.Outputs[action.PortSuccess]
	assert.Equal(t, http.StatusOK, data["status_code"])
	assert.Equal(t, map[string]any{"created": true}, data["json"])
}

func TestHTTPRequest_NonSuccessStatusFiresErrorPort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h := &action.HTTPRequest{Client: server.Client()}

	outcome := h.Execute(t.Context(), ectx(t, action.SubtypeHTTPRequest, map[string]any{
		"url": server.URL,
	}), nil)

	require.NoError(t, outcome.Err)
	require.Contains(t, outcome.Outputs, action.PortError)
	assert.Equal(t, http.StatusBadGateway, outcome.Outputs[action.PortError]["status_code"])
}

func TestHTTPRequest_ConnectionErrorFiresErrorPort(t *testing.T) {
	h := &action.HTTPRequest{Client: http.DefaultClient}

	outcome := h.Execute(t.Context(), ectx(t, action.SubtypeHTTPRequest, map[string]any{
		"url": "http://127.0.0.1:1/unreachable",
	}), nil)

	require.NoError(t, outcome.Err)
	require.Contains(t, outcome.Outputs, action.PortError)
	assert.NotEmpty(t, outcome.Outputs[action.PortError]["error"])
}

func TestHTTPRequest_MissingURLFails(t *testing.T) {
	h := &action.HTTPRequest{}

	outcome := h.Execute(t.Context(), ectx(t, action.SubtypeHTTPRequest, map[string]any{}), nil)

	require.Error(t, outcome.Err)
}
