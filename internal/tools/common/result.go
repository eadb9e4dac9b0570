package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gmailvault/internal/google"
)

// AuthRequiredMessage is shown when no usable credential is stored.
const AuthRequiredMessage = "Error: Gmail access is not authorized. Run `gmailvault auth` in a terminal to grant access, then retry."

// JSONResult renders v as a two-space indented JSON text result.
func JSONResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error: failed to format output: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ErrorResult renders err as an error text result. Authorization failures
// get a message telling the user how to authorize.
func ErrorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, google.ErrAuthorizationRequired) {
		return mcp.NewToolResultError(AuthRequiredMessage)
	}
	return mcp.NewToolResultError("Error: " + err.Error())
}

// ErrorMessage renders a validation failure as an error text result.
func ErrorMessage(format string, args ...interface{}) *mcp.CallToolResult {
	return mcp.NewToolResultError("Error: " + fmt.Sprintf(format, args...))
}
