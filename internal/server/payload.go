package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lachlan-jones5/oh-my-opencode/internal/kernel"
)

// jsonResult marshals a payload into a text tool result. Every tool
// response, success or failure, is a JSON text payload; protocol-level
// errors are reserved for transport faults.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf(`{"error":"internal_error","message":%q}`, err.Error()))
	}
	return mcp.NewToolResultText(string(data))
}

// errorResult shapes a kernel error as {error, message, ...context}.
// Non-kernel errors become internal_error.
func errorResult(err error) *mcp.CallToolResult {
	var ke *kernel.Error
	if !errors.As(err, &ke) {
		return jsonResult(map[string]any{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}

	payload := map[string]any{
		"error":   string(ke.Kind),
		"message": ke.Message,
	}
	for key, value := range ke.Context {
		if key == "error" || key == "message" {
			continue
		}
		payload[key] = value
	}
	return jsonResult(payload)
}
