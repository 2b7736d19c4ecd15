package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skilletai/skillet/internal/tools"
)

const maxResponseBytes = 4 << 20

// HTTPRequestTool performs a single HTTP request and exposes the status,
// headers, and body to the skill scope.
type HTTPRequestTool struct {
	tools.BaseTool

	// Client is replaceable for tests.
	Client *http.Client
}

func NewHTTPRequestTool() *HTTPRequestTool {
	return &HTTPRequestTool{
		BaseTool: tools.BaseTool{
			ToolName:        "http_request",
			ToolDescription: "Performs an HTTP request and returns status, headers and body",
			ToolCategory:    "network",
			ToolTags:        []string{"http", "network"},
			ToolVersion:     "1.0.0",
			Input: tools.ToolSchema{
				"url": {
					Type:        "string",
					Description: "Request URL",
					Required:    true,
					Constraints: &tools.Constraints{Pattern: `^https?://`},
				},
				"method": {
					Type:         "string",
					Description:  "HTTP method",
					DefaultValue: "GET",
					Options:      []interface{}{"GET", "POST", "PUT", "PATCH", "DELETE"},
				},
				"headers": {
					Type:        "object",
					Description: "Request headers as a string map",
				},
				"body": {
					Type:        "string",
					Description: "Request body",
				},
				"timeout_seconds": {
					Type:         "number",
					Description:  "Request timeout in seconds",
					DefaultValue: 30,
					Constraints:  &tools.Constraints{Min: floatPtr(1), Max: floatPtr(300)},
				},
			},
			Output: tools.ToolSchema{
				"status":  {Type: "number", Description: "HTTP status code"},
				"body":    {Type: "string", Description: "Response body, capped at 4 MiB"},
				"headers": {Type: "object", Description: "Response headers, first value per name"},
			},
		},
		Client: &http.Client{},
	}
}

func (t *HTTPRequestTool) Execute(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
	url, _ := input["url"].(string)
	method, _ := input["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if raw, ok := input["body"].(string); ok && raw != "" {
		body = strings.NewReader(raw)
	}

	timeout := 30 * time.Second
	if secs := numberValue(input["timeout_seconds"]); secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for name, value := range headers {
			req.Header.Set(name, fmt.Sprintf("%v", value))
		}
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for name := range resp.Header {
		respHeaders[name] = resp.Header.Get(name)
	}

	output.Set("status", resp.StatusCode)
	output.Set("body", string(data))
	output.Set("headers", respHeaders)
	return nil
}
