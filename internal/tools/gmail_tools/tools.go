package gmail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmailvault/internal/server"
	"github.com/teemow/gmailvault/internal/tools/common"
)

// Tool names.
const (
	ToolSearchMessages  = "search_gmail_messages"
	ToolReadMessage     = "read_gmail_message"
	ToolReadThread      = "read_gmail_thread"
	ToolReadProfile     = "read_gmail_profile"
	ToolListAttachments = "list_gmail_attachments"
	ToolDownload        = "download_gmail_attachment"
	ToolBatchDownload   = "batch_download_attachments"
)

type handlerFunc func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// register adds tool to s behind the instrumentation wrapper.
func register(s *mcpserver.MCPServer, sc *server.ServerContext, tool mcp.Tool, operation string, handle handlerFunc) {
	s.AddTool(tool, common.InstrumentedToolHandler(tool.Name, operation, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handle(ctx, request, sc)
		}))
}

// RegisterGmailTools registers all Gmail tools with the MCP server.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if s == nil || sc == nil {
		return fmt.Errorf("server and server context are required")
	}

	RegisterMessageTools(s, sc)
	RegisterAttachmentTools(s, sc)
	return nil
}
