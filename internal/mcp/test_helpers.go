package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CallTool invokes a tool handler in process, bypassing the stdio
// transport, and returns the first text content of the result
func (s *Server) CallTool(toolName string, params map[string]interface{}) (string, bool, error) {
	ctx := context.Background()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal params: %w", err)
	}
	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      toolName,
			Arguments: paramsJSON,
		},
	}

	var result *mcp.CallToolResult
	switch toolName {
	case "index":
		result, err = s.handleIndex(ctx, req)
	case "search":
		result, err = s.handleSearch(ctx, req)
	case "session":
		result, err = s.handleSession(ctx, req)
	case "apply_annotations":
		result, err = s.handleApplyAnnotations(ctx, req)
	case "extract":
		result, err = s.handleExtract(ctx, req)
	case "reinject":
		result, err = s.handleReinject(ctx, req)
	case "method_code":
		result, err = s.handleMethodCode(ctx, req)
	default:
		return "", false, fmt.Errorf("unknown tool: %s", toolName)
	}
	if err != nil {
		return "", false, err
	}
	if len(result.Content) == 0 {
		return "", result.IsError, nil
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return "", result.IsError, fmt.Errorf("unexpected content type %T", result.Content[0])
	}
	return text.Text, result.IsError, nil
}
