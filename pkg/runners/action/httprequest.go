package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowgrid/flowgrid/pkg/models"
	"github.com/flowgrid/flowgrid/pkg/runner"
	"github.com/flowgrid/flowgrid/pkg/template"
)

const (
	PortSuccess = "success"
	PortError   = "error"

	defaultHTTPTimeout  = 30 * time.Second
	maxResponseBodySize = 10 << 20
)

// HTTPRequest performs an outbound HTTP call. URL, headers, and body support
// expressions over the node input. A non-2xx status fires the error port
// rather than failing the node, so workflows can branch on upstream errors.
type HTTPRequest struct {
	Client *http.Client
}

func (h *HTTPRequest) Execute(ctx context.Context, ectx runner.ExecutionContext, input map[string]any) runner.Outcome {
	config := ectx.Node.Config

	rawURL, ok := config["url"].(string)
	if !ok || rawURL == "" {
		return runner.Failf("missing required field 'url'")
	}

	renderedURL, err := template.Render(rawURL, map[string]any{"input": input})
	if err != nil {
		return runner.Failf("url evaluation failed: %w", err)
	}

	url := fmt.Sprintf("%v", renderedURL)

	method := http.MethodGet
	if m, ok := config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader

	if raw, ok := config["body"].(string); ok && raw != "" {
		rendered, err := template.Render(raw, map[string]any{"input": input})
		if err != nil {
			return runner.Failf("body evaluation failed: %w", err)
		}

		switch v := rendered.(type) {
		case string:
			body = strings.NewReader(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return runner.Failf("failed to encode body: %w", err)
			}

			body = strings.NewReader(string(encoded))
		}
	}

	timeout := defaultHTTPTimeout
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return runner.Failf("failed to build request: %w", err)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for name, value := range headers {
			rendered, err := template.Render(fmt.Sprintf("%v", value), map[string]any{"input": input})
			if err != nil {
				return runner.Failf("header '%s' evaluation failed: %w", name, err)
			}

			req.Header.Set(name, fmt.Sprintf("%v", rendered))
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return runner.Completed(map[string]map[string]any{
			PortError: {"error": err.Error(), "url": url},
		})
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return runner.Failf("failed to read response body: %w", err)
	}

	data := map[string]any{
		"status_code": resp.StatusCode,
		"url":         url,
		"body":        string(responseBody),
	}

	var parsed any
	if err := json.Unmarshal(responseBody, &parsed); err == nil {
		data["json"] = parsed
	}

	port := PortSuccess
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		port = PortError
	}

	return runner.Completed(map[string]map[string]any{port: data})
}

func (h *HTTPRequest) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":             map[string]any{"type": "string"},
			"method":          map[string]any{"type": "string"},
			"headers":         map[string]any{"type": "object"},
			"body":            map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "number", "minimum": 0},
		},
		"required": []any{"url"},
	}
}

// Validate parses the url expression ahead of execution.
func (h *HTTPRequest) Validate(node *models.Node) []runner.ConfigError {
	url, ok := node.Config["url"].(string)
	if !ok || url == "" {
		return nil
	}

	if err := template.Check(url); err != nil {
		return []runner.ConfigError{{NodeID: node.ID, Field: "url", Message: err.Error()}}
	}

	return nil
}
