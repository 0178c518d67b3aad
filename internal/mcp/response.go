package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
)

// createJSONResponse wraps data as the tool's text content, followed by a
// second content block listing ignored arguments when there are any
func createJSONResponse(data interface{}, warnings []UnknownField) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}
	if len(warnings) > 0 {
		w, err := json.Marshal(map[string]interface{}{"ignored_arguments": warnings})
		if err == nil {
			result.Content = append(result.Content, &mcp.TextContent{Text: string(w)})
		}
	}
	return result, nil
}

// createErrorResponse reports a tool failure inside the result with IsError
// set, so the caller can see it and correct the request
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	if help := operationHelp[operation]; help != "" {
		errorData["help"] = help
	}

	var ie *mmerrors.IntegrityError
	if errors.As(err, &ie) {
		errorData["changed_files"] = ie.Files
		errorData["suggestion"] = "re-run extract to take a fresh snapshot, or pass force=true to write anyway"
	}

	response, marshalErr := createJSONResponse(errorData, nil)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

var operationHelp = map[string]string{
	"search":            `{"query": "create orb", "max_methods": 10, "level": 1}`,
	"session":           `{"session_id": "<from search>", "action": "exclude|retry|expand|level|load_code|load_file|annotations|pending|history|close"}`,
	"apply_annotations": `{"session_id": "<from search>", "annotations": [{"key": "Orb.nova", "bodyHash": "<from pending>", "role": "helper", "description": "..."}]}`,
	"extract":           `{"keys": ["Orb.nova"]} or {"session_id": "<from search>"}`,
	"reinject":          `{"snapshot": "<snapshotPath from extract>", "artifact": "<artifactPath from extract>"}`,
	"method_code":       `{"key": "Orb.nova"}`,
}
