package gmail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmailvault/internal/config"
	"github.com/teemow/gmailvault/internal/download"
	"github.com/teemow/gmailvault/internal/gmail"
	"github.com/teemow/gmailvault/internal/server"
	"github.com/teemow/gmailvault/internal/tools/batch"
	"github.com/teemow/gmailvault/internal/tools/common"
)

type listAttachmentsOutput struct {
	MessageID       string                       `json:"messageId"`
	Attachments     []gmail.AttachmentDescriptor `json:"attachments"`
	AttachmentCount int                          `json:"attachmentCount"`
}

// RegisterAttachmentTools registers the attachment listing and download tools.
func RegisterAttachmentTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listTool := mcp.NewTool(ToolListAttachments,
		mcp.WithDescription("List all attachments of a Gmail message, including nested parts"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the Gmail message"),
		),
	)
	register(s, sc, listTool, "list_attachments", handleListAttachments)

	downloadTool := mcp.NewTool(ToolDownload,
		mcp.WithDescription("Download one attachment to the local filesystem. Existing files are never overwritten; a numeric suffix is added instead."),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the Gmail message"),
		),
		mcp.WithString("attachmentId",
			mcp.Required(),
			mcp.Description("The ID of the attachment (from list_gmail_attachments)"),
		),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("The attachment's filename as listed; sanitized before use"),
		),
		mcp.WithString("savePath",
			mcp.Description("Directory to save into (default: the configured download directory)"),
		),
		mcp.WithString("customFilename",
			mcp.Description("Name to save under instead of the attachment's filename"),
		),
	)
	register(s, sc, downloadTool, "download_attachment", handleDownloadAttachment)

	batchTool := mcp.NewTool(ToolBatchDownload,
		mcp.WithDescription("Download several attachments in one call. Each item succeeds or fails on its own."),
		mcp.WithArray("downloads",
			mcp.Required(),
			mcp.Description("Attachments to download"),
			mcp.Items(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"messageId":      map[string]interface{}{"type": "string", "description": "The ID of the Gmail message"},
					"attachmentId":   map[string]interface{}{"type": "string", "description": "The ID of the attachment"},
					"filename":       map[string]interface{}{"type": "string", "description": "The attachment's filename"},
					"customFilename": map[string]interface{}{"type": "string", "description": "Optional name to save under"},
				},
				"required": []string{"messageId", "attachmentId", "filename"},
			}),
		),
		mcp.WithString("savePath",
			mcp.Description("Directory to save into (default: the configured download directory)"),
		),
		mcp.WithBoolean("createSubfolders",
			mcp.Description("Save into <sender>/<year> subfolders (default: false)"),
		),
	)
	register(s, sc, batchTool, "batch_download", handleBatchDownload)
}

func handleListAttachments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	messageID, err := requiredString(request.GetArguments(), "messageId")
	if err != nil {
		return common.ErrorResult(err), nil
	}

	services, err := sc.Services(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	msg, err := services.Gmail.GetMessage(ctx, messageID, gmail.FormatFull)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	attachments := gmail.Locate(gmail.NewPartTree(msg.Payload))
	return common.JSONResult(listAttachmentsOutput{
		MessageID:       messageID,
		Attachments:     attachments,
		AttachmentCount: len(attachments),
	})
}

func handleDownloadAttachment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var req download.Request
	var err error
	if req.MessageID, err = requiredString(args, "messageId"); err != nil {
		return common.ErrorResult(err), nil
	}
	if req.AttachmentID, err = requiredString(args, "attachmentId"); err != nil {
		return common.ErrorResult(err), nil
	}
	if req.Filename, err = requiredString(args, "filename"); err != nil {
		return common.ErrorResult(err), nil
	}
	if req.SavePath, err = savePathArg(args); err != nil {
		return common.ErrorResult(err), nil
	}
	if req.CustomFilename, err = optionalString(args, "customFilename", ""); err != nil {
		return common.ErrorResult(err), nil
	}

	services, err := sc.Services(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := services.Downloader.Download(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(res)
}

func handleBatchDownload(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	reqs, err := batch.ParseDownloads(args["downloads"], "downloads")
	if err != nil {
		return common.ErrorResult(err), nil
	}
	basePath, err := savePathArg(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	subfolders, err := optionalBool(args, "createSubfolders", false)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	services, err := sc.Services(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	summary := services.Orchestrator.RunBatch(ctx, reqs, download.BatchOptions{
		BasePath:         basePath,
		CreateSubfolders: subfolders,
		Concurrency:      sc.Config().BatchConcurrency,
	})
	return common.JSONResult(batch.NewSummaryPayload(summary))
}

// savePathArg returns the optional savePath with a leading ~ expanded.
func savePathArg(args map[string]interface{}) (string, error) {
	p, err := optionalString(args, "savePath", "")
	if err != nil || p == "" {
		return p, err
	}
	return config.ExpandHome(p), nil
}
