package gmail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	gmail_v1 "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailvault/internal/gmail"
	"github.com/teemow/gmailvault/internal/server"
	"github.com/teemow/gmailvault/internal/tools/common"
)

// searchOutput mirrors the list response; messages is always an array.
type searchOutput struct {
	Messages           []*gmail_v1.Message `json:"messages"`
	NextPageToken      string              `json:"nextPageToken,omitempty"`
	ResultSizeEstimate int64               `json:"resultSizeEstimate"`
}

// RegisterMessageTools registers the message, thread and profile tools.
func RegisterMessageTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	searchTool := mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Search Gmail messages using Gmail search syntax. Returns message and thread IDs; use read_gmail_message for content."),
		mcp.WithString("q",
			mcp.Required(),
			mcp.Description("Gmail search query (e.g., 'from:billing@example.com has:attachment newer_than:30d')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of results to return, 1-500 (default: 100)"),
		),
		mcp.WithString("pageToken",
			mcp.Description("Page token from a previous search to fetch the next page"),
		),
	)
	register(s, sc, searchTool, "list", handleSearchMessages)

	readMessageTool := mcp.NewTool(ToolReadMessage,
		mcp.WithDescription("Read a Gmail message by ID"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the Gmail message"),
		),
		mcp.WithString("format",
			mcp.Description("Response format: 'full' (default), 'minimal', 'raw' or 'metadata'"),
			mcp.Enum(gmail.FormatFull, gmail.FormatMinimal, gmail.FormatRaw, gmail.FormatMetadata),
		),
	)
	register(s, sc, readMessageTool, "get", handleReadMessage)

	readThreadTool := mcp.NewTool(ToolReadThread,
		mcp.WithDescription("Read a Gmail conversation thread by ID"),
		mcp.WithString("threadId",
			mcp.Required(),
			mcp.Description("The ID of the Gmail thread"),
		),
		mcp.WithBoolean("includeFullMessages",
			mcp.Description("Include full message content (default: true). When false only IDs, labels and snippets are returned."),
		),
	)
	register(s, sc, readThreadTool, "get", handleReadThread)

	profileTool := mcp.NewTool(ToolReadProfile,
		mcp.WithDescription("Read the authorized Gmail profile: email address and message/thread totals"),
	)
	register(s, sc, profileTool, "get", handleReadProfile)
}

func handleSearchMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, err := requiredString(args, "q")
	if err != nil {
		return common.ErrorResult(err), nil
	}
	maxResults, err := optionalInt(args, "maxResults", gmail.DefaultMaxResults)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	pageToken, err := optionalString(args, "pageToken", "")
	if err != nil {
		return common.ErrorResult(err), nil
	}

	services, err := sc.Services(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := services.Gmail.SearchMessages(ctx, query, maxResults, pageToken)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	out := searchOutput{
		Messages:           res.Messages,
		NextPageToken:      res.NextPageToken,
		ResultSizeEstimate: res.ResultSizeEstimate,
	}
	if out.Messages == nil {
		out.Messages = []*gmail_v1.Message{}
	}
	return common.JSONResult(out)
}

func handleReadMessage(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	messageID, err := requiredString(args, "messageId")
	if err != nil {
		return common.ErrorResult(err), nil
	}
	format, err := optionalString(args, "format", gmail.FormatFull)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	if !gmail.ValidFormat(format) {
		return common.ErrorMessage("invalid format %q, must be one of full, minimal, raw, metadata", format), nil
	}

	services, err := sc.Services(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	msg, err := services.Gmail.GetMessage(ctx, messageID, format)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(msg)
}

func handleReadThread(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	threadID, err := requiredString(args, "threadId")
	if err != nil {
		return common.ErrorResult(err), nil
	}
	full, err := optionalBool(args, "includeFullMessages", true)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	services, err := sc.Services(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	thread, err := services.Gmail.GetThread(ctx, threadID, full)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(thread)
}

func handleReadProfile(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	services, err := sc.Services(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	profile, err := services.Gmail.GetProfile(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(profile)
}
