// Package action provides general-purpose action runners: structured log
// output and outbound HTTP requests.
package action

import (
	"context"
	"fmt"
	"net/http"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/registry"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/template"
)

const (
	SubtypeLog         = "log"
	SubtypeHTTPRequest = "http_request"
)

// Register adds the action runners to the registry.
func Register(r *registry.Registry) {
	r.Register(runner.Key{Type: models.NodeTypeAction, Subtype: SubtypeLog}, &Log{})
	r.Register(runner.Key{Type: models.NodeTypeAction, Subtype: SubtypeHTTPRequest}, &HTTPRequest{Client: http.DefaultClient})
}

// Log writes a message to the execution's structured logger and passes its
// input through.
type Log struct{}

func (l *Log) Execute(_ context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	message, _ := ectx.Node.Config["message"].(string)
	if message == "" {
		message = "log node"
	}

	rendered, err := template.Render(message, map[string]any{"input": input})
	if err != nil {
		return runner.Failf("message evaluation failed: %w", err)
	}

	level, _ := ectx.Node.Config["level"].(string)

	logger := ectx.Logger.With("node_id", ectx.Node.ID)

	switch level {
	case "debug":
		logger.Debug(fmt.Sprintf("%v", rendered))
	case "warn":
		logger.Warn(fmt.Sprintf("%v", rendered))
	case "error":
		logger.Error(fmt.Sprintf("%v", rendered))
	default:
		logger.Info(fmt.Sprintf("%v", rendered))
	}

	output := make(map[string]any, len(input)+1)
	for k, v := range input {
		output[k] = v
	}
	output["logged_message"] = fmt.Sprintf("%v", rendered)

	return runner.CompletedMain(output)
}

func (l *Log) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level":   map[string]any{"type": "string", "enum": []any{"debug", "info", "warn", "error"}},
		},
	}
}
